package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal/audit"
)

func TestAudit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Audit Module Suite")
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*audit.Entry
	err     error
}

func (m *mockAuditRepo) Append(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByActor(_ context.Context, actorID string, limit, offset int) ([]*audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*audit.Entry
	for _, e := range m.entries {
		if e.ActorID == actorID {
			matched = append(matched, e)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *mockAuditRepo) stored() []*audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*audit.Entry(nil), m.entries...)
}

var _ = Describe("Audit service", func() {
	var (
		svc  *audit.Service
		repo *mockAuditRepo
	)

	BeforeEach(func() {
		repo = &mockAuditRepo{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = audit.NewService(repo, logger)
	})

	Describe("Record", func() {
		It("persists the entry asynchronously with defaults filled in", func() {
			svc.Record(context.Background(), audit.Entry{
				ActorID: "actor-1",
				Action:  "appointments:cancel",
				Outcome: audit.OutcomeDenied,
			})

			Eventually(func() int {
				return len(repo.stored())
			}).Should(Equal(1))

			e := repo.stored()[0]
			Expect(e.ID).NotTo(Equal(uuid.Nil))
			Expect(e.CreatedAt).NotTo(BeZero())
			Expect(e.Severity).To(Equal(audit.SeverityInfo))
		})

		It("keeps an explicitly set severity", func() {
			svc.Record(context.Background(), audit.Entry{
				ActorID:  "actor-1",
				Action:   "appointments:cancel",
				Outcome:  audit.OutcomeDenied,
				Severity: audit.SeverityWarning,
			})

			Eventually(func() int {
				return len(repo.stored())
			}).Should(Equal(1))
			Expect(repo.stored()[0].Severity).To(Equal(audit.SeverityWarning))
		})

		It("swallows repository failures without panicking the caller", func() {
			repo.err = errors.New("disk full")

			Expect(func() {
				svc.Record(context.Background(), audit.Entry{Action: "appointments:create"})
			}).NotTo(Panic())

			Consistently(func() int {
				return len(repo.stored())
			}, 100*time.Millisecond).Should(BeZero())
		})

		It("survives the request context being cancelled right after the call", func() {
			ctx, cancel := context.WithCancel(context.Background())
			svc.Record(ctx, audit.Entry{ActorID: "actor-1", Action: "appointments:create"})
			cancel()

			Eventually(func() int {
				return len(repo.stored())
			}).Should(Equal(1))
		})
	})

	Describe("ListByActor", func() {
		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				svc.Record(context.Background(), audit.Entry{ActorID: "actor-1", Action: "appointments:view"})
			}
			svc.Record(context.Background(), audit.Entry{ActorID: "actor-2", Action: "appointments:view"})

			Eventually(func() int {
				return len(repo.stored())
			}).Should(Equal(4))
		})

		It("returns only the requested actor's trail", func() {
			entries, err := svc.ListByActor(context.Background(), "actor-1", 50, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
		})

		It("clamps out-of-range paging values", func() {
			entries, err := svc.ListByActor(context.Background(), "actor-1", -5, -1)

			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
		})
	})
})
