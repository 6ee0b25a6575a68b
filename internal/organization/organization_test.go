package organization_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/organization"
	"github.com/clinicore/clinic-booking/internal/user"
)

func TestOrganization(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Organization Module Suite")
}

var _ = Describe("WorkingHours", func() {
	Describe("Validate", func() {
		It("accepts well-formed windows", func() {
			hours := organization.WorkingHours{
				"monday": {Open: "08:00", Close: "18:00"},
				"friday": {Open: "08:00", Close: "14:00"},
			}

			Expect(hours.Validate()).To(Succeed())
		})

		It("rejects an unknown weekday", func() {
			hours := organization.WorkingHours{
				"funday": {Open: "08:00", Close: "18:00"},
			}

			Expect(hours.Validate()).To(HaveOccurred())
		})

		It("rejects a window that closes before it opens", func() {
			hours := organization.WorkingHours{
				"monday": {Open: "18:00", Close: "08:00"},
			}

			Expect(hours.Validate()).To(HaveOccurred())
		})

		It("rejects malformed clock values", func() {
			hours := organization.WorkingHours{
				"monday": {Open: "8am", Close: "18:00"},
			}

			Expect(hours.Validate()).To(HaveOccurred())
		})
	})

	Describe("WindowFor", func() {
		It("reports days without an entry as closed", func() {
			hours := organization.WorkingHours{
				"monday": {Open: "08:00", Close: "18:00"},
			}

			_, open := hours.WindowFor(time.Sunday)
			Expect(open).To(BeFalse())

			win, open := hours.WindowFor(time.Monday)
			Expect(open).To(BeTrue())
			Expect(win.Open).To(Equal("08:00"))
		})
	})

	Describe("ParseClock", func() {
		It("converts HH:MM to minutes since midnight", func() {
			minutes, err := organization.ParseClock("09:30")
			Expect(err).NotTo(HaveOccurred())
			Expect(minutes).To(Equal(570))
		})

		It("rejects out-of-range values", func() {
			_, err := organization.ParseClock("25:00")
			Expect(err).To(HaveOccurred())
		})
	})
})

type mockOrgRepo struct {
	organizations map[uuid.UUID]*organization.Organization
	locations     map[uuid.UUID]*organization.Location
	fiscalCodes   map[string]bool
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{
		organizations: make(map[uuid.UUID]*organization.Organization),
		locations:     make(map[uuid.UUID]*organization.Location),
		fiscalCodes:   make(map[string]bool),
	}
}

func (m *mockOrgRepo) CreateOrganization(_ context.Context, org *organization.Organization) error {
	if m.fiscalCodes[org.FiscalCode] {
		return organization.ErrDuplicateFiscalCode
	}
	m.fiscalCodes[org.FiscalCode] = true
	m.organizations[org.ID] = org
	return nil
}

func (m *mockOrgRepo) GetOrganization(_ context.Context, id uuid.UUID) (*organization.Organization, error) {
	org, ok := m.organizations[id]
	if !ok {
		return nil, organization.ErrOrganizationNotFound
	}
	return org, nil
}

func (m *mockOrgRepo) CreateLocation(_ context.Context, loc *organization.Location) error {
	m.locations[loc.ID] = loc
	return nil
}

func (m *mockOrgRepo) GetLocation(_ context.Context, id uuid.UUID) (*organization.Location, error) {
	loc, ok := m.locations[id]
	if !ok {
		return nil, organization.ErrLocationNotFound
	}
	return loc, nil
}

func (m *mockOrgRepo) UpdateLocation(_ context.Context, loc *organization.Location) error {
	m.locations[loc.ID] = loc
	return nil
}

func (m *mockOrgRepo) ListLocations(_ context.Context, organizationID uuid.UUID) ([]*organization.Location, error) {
	var out []*organization.Location
	for _, loc := range m.locations {
		if loc.OrganizationID == organizationID {
			out = append(out, loc)
		}
	}
	return out, nil
}

func (m *mockOrgRepo) ActiveLocationIDs(_ context.Context, organizationID string) ([]string, error) {
	var ids []string
	for _, loc := range m.locations {
		if loc.OrganizationID.String() == organizationID && loc.IsActive {
			ids = append(ids, loc.ID.String())
		}
	}
	return ids, nil
}

type allowAllEvaluator struct{}

func (allowAllEvaluator) Evaluate(_ context.Context, _ *user.User, _ authz.Permission, _ authz.Request) (authz.Decision, error) {
	return authz.Decision{Allowed: true}, nil
}

type noopSink struct{}

func (noopSink) Record(_ context.Context, _ audit.Entry) {}

var _ = Describe("Tenancy service", func() {
	var (
		svc   *organization.Service
		repo  *mockOrgRepo
		actor *user.User
	)

	BeforeEach(func() {
		repo = newMockOrgRepo()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = organization.NewService(repo, allowAllEvaluator{}, noopSink{}, logger)
		orgID := uuid.New()
		actor = &user.User{ID: uuid.New(), Email: "admin@clinic.dev", Role: user.RoleSuperAdmin, OrganizationID: &orgID}
	})

	Describe("CreateOrganization", func() {
		It("registers a tenant with its fiscal code", func() {
			org, err := svc.CreateOrganization(context.Background(), organization.CreateOrganizationDTO{
				Name:       "Aurora Medical Group",
				FiscalCode: "AMG-0001",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(org.ID).NotTo(Equal(uuid.Nil))
			Expect(org.FiscalCode).To(Equal("AMG-0001"))
		})

		It("conflicts on a duplicate fiscal code", func() {
			_, err := svc.CreateOrganization(context.Background(), organization.CreateOrganizationDTO{
				Name:       "Aurora Medical Group",
				FiscalCode: "AMG-0001",
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.CreateOrganization(context.Background(), organization.CreateOrganizationDTO{
				Name:       "Another Group",
				FiscalCode: "AMG-0001",
			})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeDuplicateFiscalCode))
		})
	})

	Describe("locations", func() {
		var orgID uuid.UUID

		BeforeEach(func() {
			org, err := svc.CreateOrganization(context.Background(), organization.CreateOrganizationDTO{
				Name:       "Aurora Medical Group",
				FiscalCode: "AMG-0001",
			})
			Expect(err).NotTo(HaveOccurred())
			orgID = org.ID
		})

		It("creates an active location under an existing tenant", func() {
			loc, err := svc.CreateLocation(context.Background(), actor, orgID, organization.CreateLocationDTO{
				Name:    "Downtown Clinic",
				Address: "12 Main St",
				WorkingHours: organization.WorkingHours{
					"monday": {Open: "08:00", Close: "18:00"},
				},
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(loc.IsActive).To(BeTrue())
			Expect(loc.OrganizationID).To(Equal(orgID))
		})

		It("refuses a location for a tenant that does not exist", func() {
			_, err := svc.CreateLocation(context.Background(), actor, uuid.New(), organization.CreateLocationDTO{
				Name: "Orphan Clinic",
				WorkingHours: organization.WorkingHours{
					"monday": {Open: "08:00", Close: "18:00"},
				},
			})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeOrganizationNotFound))
		})

		It("deactivates instead of deleting", func() {
			loc, err := svc.CreateLocation(context.Background(), actor, orgID, organization.CreateLocationDTO{
				Name: "Downtown Clinic",
				WorkingHours: organization.WorkingHours{
					"monday": {Open: "08:00", Close: "18:00"},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.DeactivateLocation(context.Background(), actor, loc.ID)).To(Succeed())

			stored, err := svc.GetLocation(context.Background(), loc.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsActive).To(BeFalse())

			ids, err := svc.ActiveLocationIDs(context.Background(), orgID.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).NotTo(ContainElement(loc.ID.String()))
		})
	})
})
