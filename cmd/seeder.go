package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinic-booking/internal/appointment"
	"github.com/clinicore/clinic-booking/internal/doctor"
	"github.com/clinicore/clinic-booking/internal/organization"
	"github.com/clinicore/clinic-booking/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, _, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{"appointments", "invitations", "doctors", "users", "locations", "organizations", "audit_log"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		org := &organization.Organization{
			ID:         uuid.New(),
			Name:       "Aurora Medical Group",
			FiscalCode: "AMG-0001",
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		if err := db.Create(org).Error; err != nil {
			log.Fatalf("failed to seed organization: %v", err)
		}

		hours := organization.WorkingHours{
			"monday":    {Open: "08:00", Close: "18:00"},
			"tuesday":   {Open: "08:00", Close: "18:00"},
			"wednesday": {Open: "08:00", Close: "18:00"},
			"thursday":  {Open: "08:00", Close: "18:00"},
			"friday":    {Open: "08:00", Close: "14:00"},
		}

		var locations []*organization.Location
		for _, name := range []string{"Downtown Clinic", "Riverside Clinic"} {
			loc := &organization.Location{
				ID:             uuid.New(),
				OrganizationID: org.ID,
				Name:           name,
				Address:        gofakeit.Street(),
				WorkingHours:   hours,
				IsActive:       true,
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}
			if err := db.Create(loc).Error; err != nil {
				log.Fatalf("failed to seed location: %v", err)
			}
			locations = append(locations, loc)
		}

		seedUser := func(email, name string, role user.Role, assigned *user.StringList) *user.User {
			u := &user.User{
				ID:                  uuid.New(),
				Email:               email,
				Name:                name,
				PasswordHash:        string(hash),
				Role:                role,
				OrganizationID:      &org.ID,
				AssignedLocationIDs: assigned,
				IsActive:            true,
				CreatedAt:           time.Now(),
				UpdatedAt:           time.Now(),
			}
			if err := db.Create(u).Error; err != nil {
				log.Fatalf("failed to seed user %s: %v", email, err)
			}
			return u
		}

		firstLoc := user.StringList{locations[0].ID.String()}

		// nil assignment list: the super admin resolves locations live.
		seedUser("admin@clinic.dev", "Seed Super Admin", user.RoleSuperAdmin, nil)
		seedUser("manager@clinic.dev", "Seed Location Admin", user.RoleLocationAdmin, &firstLoc)
		seedUser("frontdesk@clinic.dev", "Seed Receptionist", user.RoleReceptionist, &firstLoc)

		schedule := doctor.Schedule{
			"monday":    {{Start: "09:00", End: "12:00"}, {Start: "14:00", End: "17:00"}},
			"wednesday": {{Start: "09:00", End: "12:00"}},
			"friday":    {{Start: "09:00", End: "13:00"}},
		}

		var doctors []*doctor.Doctor
		for i := 0; i < 3; i++ {
			email := fmt.Sprintf("doctor%d@clinic.dev", i+1)
			name := "Dr. " + gofakeit.LastName()
			loc := locations[i%len(locations)]

			du := seedUser(email, name, user.RoleDoctor, &user.StringList{loc.ID.String()})
			d := &doctor.Doctor{
				ID:                   uuid.New(),
				UserID:               du.ID,
				Email:                email,
				OrganizationID:       org.ID,
				LocationID:           loc.ID,
				Name:                 name,
				Specialty:            gofakeit.RandomString([]string{"cardiology", "dermatology", "general practice"}),
				ConsultationDuration: 30,
				Schedule:             schedule,
				IsActive:             true,
				CreatedAt:            time.Now(),
				UpdatedAt:            time.Now(),
			}
			if err := db.Create(d).Error; err != nil {
				log.Fatalf("failed to seed doctor: %v", err)
			}
			doctors = append(doctors, d)
		}

		empty := user.StringList{}
		var patients []*user.User
		for i := 0; i < 5; i++ {
			email := fmt.Sprintf("patient%d@mail.dev", i+1)
			patients = append(patients, seedUser(email, gofakeit.Name(), user.RolePatient, &empty))
		}

		// Next Monday, first morning slots.
		day := time.Now().UTC()
		for day.Weekday() != time.Monday {
			day = day.AddDate(0, 0, 1)
		}
		for i, p := range patients[:3] {
			d := doctors[i%len(doctors)]
			at := time.Date(day.Year(), day.Month(), day.Day(), 9+i, 0, 0, 0, time.UTC)
			a := &appointment.Appointment{
				ID:             uuid.New(),
				OrganizationID: org.ID,
				LocationID:     d.LocationID,
				DoctorID:       d.ID,
				PatientID:      p.ID,
				DateTime:       at,
				Duration:       d.ConsultationDuration,
				Status:         appointment.StatusScheduled,
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}
			if err := db.Create(a).Error; err != nil {
				log.Fatalf("failed to seed appointment: %v", err)
			}
		}

		fmt.Println("Seed complete: 1 organization, 2 locations, 3 doctors, 5 patients, 3 appointments")
		fmt.Println("All seeded accounts use password: password")
	},
}
