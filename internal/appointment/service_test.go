package appointment_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/appointment"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/doctor"
	"github.com/clinicore/clinic-booking/internal/organization"
	"github.com/clinicore/clinic-booking/internal/user"
)

type mockAppointmentRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*appointment.Appointment
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appointments: make(map[uuid.UUID]*appointment.Appointment)}
}

func (m *mockAppointmentRepo) CreateIfSlotFree(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.DoctorID == a.DoctorID && existing.DateTime.Equal(a.DateTime) && existing.Status != appointment.StatusCancelled {
			return appointment.ErrSlotTaken
		}
	}
	clone := *a
	m.appointments[a.ID] = &clone
	return nil
}

func (m *mockAppointmentRepo) MoveIfSlotFree(_ context.Context, a *appointment.Appointment, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.appointments {
		if id != a.ID && existing.DoctorID == a.DoctorID && existing.DateTime.Equal(to) && existing.Status != appointment.StatusCancelled {
			return appointment.ErrSlotTaken
		}
	}
	stored, ok := m.appointments[a.ID]
	if !ok {
		return appointment.ErrNotFound
	}
	stored.DateTime = to
	a.DateTime = to
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *mockAppointmentRepo) UpdateStatusCAS(_ context.Context, a *appointment.Appointment, from appointment.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.appointments[a.ID]
	if !ok || stored.Status != from {
		return appointment.ErrStatusConflict
	}
	clone := *a
	m.appointments[a.ID] = &clone
	return nil
}

func (m *mockAppointmentRepo) ListActiveTimesForDoctorOnDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []time.Time
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status != appointment.StatusCancelled && sameDay(a.DateTime, date) {
			times = append(times, a.DateTime)
		}
	}
	return times, nil
}

func (m *mockAppointmentRepo) ListForDoctor(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && sameDay(a.DateTime, date) {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) ListForPatient(_ context.Context, patientID uuid.UUID) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) ListForLocation(_ context.Context, locationID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.appointments {
		if a.LocationID == locationID && sameDay(a.DateTime, date) {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type mockDoctorReader struct {
	doctors map[uuid.UUID]*doctor.Doctor
}

func (m *mockDoctorReader) GetDoctor(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, internal.NewNotFoundError("doctor not found", internal.ErrCodeDoctorNotFound)
	}
	return d, nil
}

type mockLocationReader struct {
	locations map[uuid.UUID]*organization.Location
}

func (m *mockLocationReader) GetLocation(_ context.Context, id uuid.UUID) (*organization.Location, error) {
	loc, ok := m.locations[id]
	if !ok {
		return nil, internal.NewNotFoundError("location not found", internal.ErrCodeLocationNotFound)
	}
	return loc, nil
}

type stubEvaluator struct {
	mu       sync.Mutex
	decision authz.Decision
	evals    []authz.Permission
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ *user.User, perm authz.Permission, _ authz.Request) (authz.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals = append(s.evals, perm)
	return s.decision, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *recordingSink) Record(_ context.Context, e audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *recordingSink) all() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...)
}

var _ = Describe("Scheduling service", func() {
	var (
		svc       *appointment.Service
		repo      *mockAppointmentRepo
		evaluator *stubEvaluator
		sink      *recordingSink
		doc       *doctor.Doctor
		clinic    *organization.Location
		patient   *user.User
		staff     *user.User
	)

	bookingDTO := func(t string) appointment.BookAppointmentDTO {
		return appointment.BookAppointmentDTO{
			DoctorID:  doc.ID.String(),
			PatientID: patient.ID.String(),
			Date:      "2026-09-07", // a Monday
			Time:      t,
		}
	}

	BeforeEach(func() {
		repo = newMockAppointmentRepo()
		evaluator = &stubEvaluator{decision: authz.Decision{Allowed: true}}
		sink = &recordingSink{}

		orgID := uuid.New()
		clinic = &organization.Location{
			ID:             uuid.New(),
			OrganizationID: orgID,
			Name:           "Downtown Clinic",
			IsActive:       true,
		}
		doc = &doctor.Doctor{
			ID:                   uuid.New(),
			Email:                "doc@clinic.dev",
			OrganizationID:       orgID,
			LocationID:           clinic.ID,
			ConsultationDuration: 30,
			Schedule: doctor.Schedule{
				"monday": {{Start: "09:00", End: "12:00"}},
			},
			IsActive: true,
		}
		doctors := &mockDoctorReader{doctors: map[uuid.UUID]*doctor.Doctor{doc.ID: doc}}
		locations := &mockLocationReader{locations: map[uuid.UUID]*organization.Location{clinic.ID: clinic}}

		patient = &user.User{ID: uuid.New(), Email: "pat@mail.dev", Role: user.RolePatient}
		assigned := user.StringList{doc.LocationID.String()}
		staff = &user.User{ID: uuid.New(), Email: "desk@clinic.dev", Role: user.RoleReceptionist, AssignedLocationIDs: &assigned}

		engine := appointment.NewAvailabilityEngine(fixedClock{
			now: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		})
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = appointment.NewService(repo, doctors, locations, evaluator, engine, nil, sink, nil, logger)
	})

	Describe("Book", func() {
		It("books a free slot as SCHEDULED and audits the success", func() {
			a, err := svc.Book(context.Background(), staff, bookingDTO("09:30"))

			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status).To(Equal(appointment.StatusScheduled))
			Expect(a.Duration).To(Equal(30))
			Expect(a.DateTime).To(Equal(time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC)))

			entries := sink.all()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Outcome).To(Equal(audit.OutcomeSuccess))
			Expect(entries[0].Action).To(Equal(string(authz.PermAppointmentsCreate)))
		})

		It("rejects a slot outside the doctor's schedule", func() {
			_, err := svc.Book(context.Background(), staff, bookingDTO("13:00"))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeSlotTaken))
		})

		It("rejects a double booking of the same slot", func() {
			_, err := svc.Book(context.Background(), staff, bookingDTO("10:00"))
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.Book(context.Background(), staff, bookingDTO("10:00"))
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeSlotTaken))
		})

		It("allows the slot again after the first booking is cancelled", func() {
			a, err := svc.Book(context.Background(), staff, bookingDTO("10:00"))
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.Cancel(context.Background(), staff, a.ID, appointment.CancelDTO{Reason: "patient called in"})
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.Book(context.Background(), staff, bookingDTO("10:00"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("admits exactly one of many concurrent bookings for the same slot", func() {
			const writers = 10

			var wg sync.WaitGroup
			results := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := svc.Book(context.Background(), staff, bookingDTO("11:00"))
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			var succeeded, conflicted int
			for err := range results {
				if err == nil {
					succeeded++
					continue
				}
				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(internal.ErrCodeSlotTaken))
				conflicted++
			}

			Expect(succeeded).To(Equal(1))
			Expect(conflicted).To(Equal(writers - 1))
		})

		It("does not touch storage when permission is denied", func() {
			evaluator.decision = authz.Decision{Allowed: false, Reason: authz.ReasonAdminViewOnly}

			_, err := svc.Book(context.Background(), staff, bookingDTO("09:00"))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePermissionDenied))
			Expect(appErr.Message).To(Equal(authz.ReasonAdminViewOnly))
			Expect(repo.appointments).To(BeEmpty())
		})

		It("refuses bookings at a deactivated location", func() {
			clinic.IsActive = false

			_, err := svc.Book(context.Background(), staff, bookingDTO("09:00"))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeLocationInactive))
			Expect(repo.appointments).To(BeEmpty())
		})

		It("refuses bookings with an inactive doctor", func() {
			doc.IsActive = false

			_, err := svc.Book(context.Background(), staff, bookingDTO("09:00"))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("refuses a patient booking on behalf of someone else", func() {
			dto := bookingDTO("09:00")
			dto.PatientID = uuid.NewString()

			_, err := svc.Book(context.Background(), patient, dto)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePermissionDenied))
		})
	})

	Describe("lifecycle transitions", func() {
		var booked *appointment.Appointment

		BeforeEach(func() {
			var err error
			booked, err = svc.Book(context.Background(), staff, bookingDTO("09:00"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("moves SCHEDULED to CONFIRMED to COMPLETED", func() {
			a, err := svc.Accept(context.Background(), staff, booked.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status).To(Equal(appointment.StatusConfirmed))

			a, err = svc.Complete(context.Background(), staff, booked.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status).To(Equal(appointment.StatusCompleted))
		})

		It("refuses completing an appointment that was never confirmed", func() {
			_, err := svc.Complete(context.Background(), staff, booked.ID)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidStatus))
		})

		It("reschedules into a free slot and refuses an occupied one", func() {
			_, err := svc.Book(context.Background(), staff, bookingDTO("10:00"))
			Expect(err).ToNot(HaveOccurred())

			a, err := svc.Reschedule(context.Background(), staff, booked.ID, appointment.RescheduleDTO{Date: "2026-09-07", Time: "11:30"})
			Expect(err).ToNot(HaveOccurred())
			Expect(a.DateTime).To(Equal(time.Date(2026, 9, 7, 11, 30, 0, 0, time.UTC)))

			_, err = svc.Reschedule(context.Background(), staff, booked.ID, appointment.RescheduleDTO{Date: "2026-09-07", Time: "10:00"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeSlotTaken))
		})

		It("does not treat the appointment's own slot as a conflict", func() {
			a, err := svc.Reschedule(context.Background(), staff, booked.ID, appointment.RescheduleDTO{Date: "2026-09-07", Time: "09:00"})

			Expect(err).ToNot(HaveOccurred())
			Expect(a.DateTime).To(Equal(time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)))
			Expect(a.Status).To(Equal(appointment.StatusScheduled))
		})
	})

	Describe("the two cancellation paths", func() {
		var booked *appointment.Appointment

		BeforeEach(func() {
			var err error
			booked, err = svc.Book(context.Background(), staff, bookingDTO("09:00"))
			Expect(err).ToNot(HaveOccurred())
		})

		It("requires a reason of at least three characters", func() {
			_, err := svc.Cancel(context.Background(), staff, booked.ID, appointment.CancelDTO{Reason: "no"})

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeReasonTooShort))
		})

		It("records reason, actor and instant on a reasoned cancellation", func() {
			a, err := svc.Cancel(context.Background(), staff, booked.ID, appointment.CancelDTO{Reason: "patient moved away"})

			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status).To(Equal(appointment.StatusCancelled))
			Expect(a.CancelReason).To(Equal("patient moved away"))
			Expect(a.CancelledByID).To(Equal(staff.ID.String()))
			Expect(a.CancelledAt).ToNot(BeNil())
		})

		It("cancels without any reason through the delete path", func() {
			a, err := svc.Delete(context.Background(), staff, booked.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(a.Status).To(Equal(appointment.StatusCancelled))
			Expect(a.CancelReason).To(BeEmpty())
		})

		It("evaluates distinct permissions for the two paths", func() {
			_, err := svc.Delete(context.Background(), staff, booked.ID)
			Expect(err).ToNot(HaveOccurred())

			Expect(evaluator.evals).To(ContainElement(authz.PermAppointmentsDelete))
			Expect(evaluator.evals).ToNot(ContainElement(authz.PermAppointmentsCancel))
		})

		It("conflicts on a second cancellation instead of silently succeeding", func() {
			_, err := svc.Cancel(context.Background(), staff, booked.ID, appointment.CancelDTO{Reason: "first call"})
			Expect(err).ToNot(HaveOccurred())

			_, err = svc.Cancel(context.Background(), staff, booked.ID, appointment.CancelDTO{Reason: "second call"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidStatus))
		})
	})

	Describe("Availability", func() {
		It("reflects booked slots and keeps the rest", func() {
			_, err := svc.Book(context.Background(), staff, bookingDTO("09:30"))
			Expect(err).ToNot(HaveOccurred())

			resp, err := svc.Availability(context.Background(), staff, doc.ID, "2026-09-07")

			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Slots).To(Equal([]string{"09:00", "10:00", "10:30", "11:00", "11:30"}))
		})
	})
})
