package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal/appointment"
	appointmentPostgres "github.com/clinicore/clinic-booking/internal/appointment/postgres"
)

func TestAppointmentPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Appointment Postgres Suite")
}

var _ = Describe("Appointment Repository", func() {
	var (
		db   *gorm.DB
		repo appointment.Repository
		ctx  context.Context

		doctorID uuid.UUID
		slot     time.Time
	)

	newAppointment := func(at time.Time, status appointment.Status) *appointment.Appointment {
		return &appointment.Appointment{
			ID:             uuid.New(),
			OrganizationID: uuid.New(),
			LocationID:     uuid.New(),
			DoctorID:       doctorID,
			PatientID:      uuid.New(),
			DateTime:       at,
			Duration:       30,
			Status:         status,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&appointment.Appointment{})
		Expect(err).NotTo(HaveOccurred())

		repo = appointmentPostgres.NewAppointmentRepository(db)
		ctx = context.Background()

		doctorID = uuid.New()
		slot = time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC)
	})

	Describe("CreateIfSlotFree", func() {
		It("creates an appointment in a free slot", func() {
			a := newAppointment(slot, appointment.StatusScheduled)

			err := repo.CreateIfSlotFree(ctx, a)
			Expect(err).NotTo(HaveOccurred())

			loaded, err := repo.GetByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Status).To(Equal(appointment.StatusScheduled))
			Expect(loaded.DateTime.UTC()).To(Equal(slot))
		})

		It("rejects a second booking for the same doctor and instant", func() {
			first := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, first)).To(Succeed())

			second := newAppointment(slot, appointment.StatusScheduled)
			err := repo.CreateIfSlotFree(ctx, second)
			Expect(err).To(MatchError(appointment.ErrSlotTaken))
		})

		It("frees the slot once the holder is cancelled", func() {
			first := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, first)).To(Succeed())

			first.Status = appointment.StatusCancelled
			Expect(repo.UpdateStatusCAS(ctx, first, appointment.StatusScheduled)).To(Succeed())

			second := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, second)).To(Succeed())
		})

		It("leaves another doctor's identical instant untouched", func() {
			first := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, first)).To(Succeed())

			other := newAppointment(slot, appointment.StatusScheduled)
			other.DoctorID = uuid.New()
			Expect(repo.CreateIfSlotFree(ctx, other)).To(Succeed())
		})
	})

	Describe("MoveIfSlotFree", func() {
		It("moves an appointment into a free slot", func() {
			a := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, a)).To(Succeed())

			target := slot.Add(time.Hour)
			Expect(repo.MoveIfSlotFree(ctx, a, target)).To(Succeed())

			loaded, err := repo.GetByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.DateTime.UTC()).To(Equal(target))
		})

		It("refuses to move onto another active appointment", func() {
			a := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, a)).To(Succeed())

			target := slot.Add(time.Hour)
			blocker := newAppointment(target, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, blocker)).To(Succeed())

			err := repo.MoveIfSlotFree(ctx, a, target)
			Expect(err).To(MatchError(appointment.ErrSlotTaken))
		})

		It("lets an appointment stay on its own slot", func() {
			a := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, a)).To(Succeed())

			Expect(repo.MoveIfSlotFree(ctx, a, slot)).To(Succeed())
		})
	})

	Describe("UpdateStatusCAS", func() {
		It("applies the update when the stored status matches", func() {
			a := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, a)).To(Succeed())

			a.Status = appointment.StatusConfirmed
			a.UpdatedAt = time.Now()
			Expect(repo.UpdateStatusCAS(ctx, a, appointment.StatusScheduled)).To(Succeed())

			loaded, err := repo.GetByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Status).To(Equal(appointment.StatusConfirmed))
		})

		It("conflicts when the stored status moved underneath", func() {
			a := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, a)).To(Succeed())

			confirmed := *a
			confirmed.Status = appointment.StatusConfirmed
			Expect(repo.UpdateStatusCAS(ctx, &confirmed, appointment.StatusScheduled)).To(Succeed())

			stale := *a
			stale.Status = appointment.StatusCancelled
			err := repo.UpdateStatusCAS(ctx, &stale, appointment.StatusScheduled)
			Expect(err).To(MatchError(appointment.ErrStatusConflict))
		})

		It("persists the cancellation metadata", func() {
			a := newAppointment(slot, appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, a)).To(Succeed())

			now := time.Now().UTC()
			a.Status = appointment.StatusCancelled
			a.CancelReason = "patient moved away"
			a.CancelledByID = uuid.NewString()
			a.CancelledAt = &now
			Expect(repo.UpdateStatusCAS(ctx, a, appointment.StatusScheduled)).To(Succeed())

			loaded, err := repo.GetByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.CancelReason).To(Equal("patient moved away"))
			Expect(loaded.CancelledByID).To(Equal(a.CancelledByID))
			Expect(loaded.CancelledAt).NotTo(BeNil())
		})
	})

	Describe("ListActiveTimesForDoctorOnDate", func() {
		It("returns non-cancelled start times within the calendar day", func() {
			Expect(repo.CreateIfSlotFree(ctx, newAppointment(slot, appointment.StatusScheduled))).To(Succeed())
			Expect(repo.CreateIfSlotFree(ctx, newAppointment(slot.Add(time.Hour), appointment.StatusConfirmed))).To(Succeed())

			cancelled := newAppointment(slot.Add(2*time.Hour), appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, cancelled)).To(Succeed())
			cancelled.Status = appointment.StatusCancelled
			Expect(repo.UpdateStatusCAS(ctx, cancelled, appointment.StatusScheduled)).To(Succeed())

			nextDay := newAppointment(slot.AddDate(0, 0, 1), appointment.StatusScheduled)
			Expect(repo.CreateIfSlotFree(ctx, nextDay)).To(Succeed())

			times, err := repo.ListActiveTimesForDoctorOnDate(ctx, doctorID, slot)
			Expect(err).NotTo(HaveOccurred())
			Expect(times).To(HaveLen(2))
			Expect(times[0].UTC()).To(Equal(slot))
			Expect(times[1].UTC()).To(Equal(slot.Add(time.Hour)))
		})
	})

	Describe("GetByID", func() {
		It("reports a missing appointment with the sentinel error", func() {
			_, err := repo.GetByID(ctx, uuid.New())
			Expect(err).To(MatchError(appointment.ErrNotFound))
		})
	})
})
