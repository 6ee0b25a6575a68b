package internal_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal"
)

func TestInternal(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Internal Suite")
}

var _ = Describe("DetachedTimeout", func() {
	It("bounds the detached context by the given duration", func() {
		ctx, cancel := internal.DetachedTimeout(time.Minute)
		defer cancel()

		deadline, ok := ctx.Deadline()
		Expect(ok).To(BeTrue())
		Expect(deadline).To(BeTemporally("~", time.Now().Add(time.Minute), time.Second))
	})

	It("falls back to five seconds when the duration is not positive", func() {
		ctx, cancel := internal.DetachedTimeout(0)
		defer cancel()

		deadline, ok := ctx.Deadline()
		Expect(ok).To(BeTrue())
		Expect(deadline).To(BeTemporally("~", time.Now().Add(5*time.Second), time.Second))
	})
})
