package doctor_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal/doctor"
	"github.com/clinicore/clinic-booking/internal/organization"
)

func TestDoctor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Doctor Module Suite")
}

var _ = Describe("Schedule", func() {
	var hours organization.WorkingHours

	BeforeEach(func() {
		hours = organization.WorkingHours{
			"monday": {Open: "08:00", Close: "18:00"},
			"friday": {Open: "08:00", Close: "14:00"},
		}
	})

	Describe("ClampToWorkingHours", func() {
		It("keeps intervals already inside the working hours untouched", func() {
			s := doctor.Schedule{
				"monday": {{Start: "09:00", End: "12:00"}},
			}

			clamped, err := s.ClampToWorkingHours(hours)

			Expect(err).NotTo(HaveOccurred())
			Expect(clamped).To(Equal(doctor.Schedule{
				"monday": {{Start: "09:00", End: "12:00"}},
			}))
		})

		It("clamps intervals that spill past the window edges", func() {
			s := doctor.Schedule{
				"monday": {{Start: "07:00", End: "19:30"}},
			}

			clamped, err := s.ClampToWorkingHours(hours)

			Expect(err).NotTo(HaveOccurred())
			Expect(clamped["monday"]).To(Equal([]doctor.Interval{
				{Start: "08:00", End: "18:00"},
			}))
		})

		It("drops intervals that clamp to nothing", func() {
			s := doctor.Schedule{
				"friday": {
					{Start: "15:00", End: "17:00"},
					{Start: "09:00", End: "11:00"},
				},
			}

			clamped, err := s.ClampToWorkingHours(hours)

			Expect(err).NotTo(HaveOccurred())
			Expect(clamped["friday"]).To(Equal([]doctor.Interval{
				{Start: "09:00", End: "11:00"},
			}))
		})

		It("drops whole days the location is closed", func() {
			s := doctor.Schedule{
				"sunday": {{Start: "09:00", End: "12:00"}},
				"monday": {{Start: "09:00", End: "12:00"}},
			}

			clamped, err := s.ClampToWorkingHours(hours)

			Expect(err).NotTo(HaveOccurred())
			Expect(clamped).NotTo(HaveKey("sunday"))
			Expect(clamped).To(HaveKey("monday"))
		})

		It("sorts a day's intervals by start time", func() {
			s := doctor.Schedule{
				"monday": {
					{Start: "14:00", End: "16:00"},
					{Start: "09:00", End: "11:00"},
				},
			}

			clamped, err := s.ClampToWorkingHours(hours)

			Expect(err).NotTo(HaveOccurred())
			Expect(clamped["monday"]).To(Equal([]doctor.Interval{
				{Start: "09:00", End: "11:00"},
				{Start: "14:00", End: "16:00"},
			}))
		})

		It("rejects malformed clock values", func() {
			s := doctor.Schedule{
				"monday": {{Start: "nine", End: "12:00"}},
			}

			_, err := s.ClampToWorkingHours(hours)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("IntervalsFor", func() {
		It("returns the intervals of a working day and nothing for closed days", func() {
			s := doctor.Schedule{
				"monday": {{Start: "09:00", End: "12:00"}},
			}

			Expect(s.IntervalsFor(time.Monday)).To(HaveLen(1))
			Expect(s.IntervalsFor(time.Tuesday)).To(BeEmpty())
		})
	})
})
