package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/appointment"
	appointmentdb "github.com/clinicore/clinic-booking/internal/appointment/postgres"
	"github.com/clinicore/clinic-booking/internal/audit"
	auditdb "github.com/clinicore/clinic-booking/internal/audit/postgres"
	"github.com/clinicore/clinic-booking/internal/auth"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/core/events"
	"github.com/clinicore/clinic-booking/internal/doctor"
	doctordb "github.com/clinicore/clinic-booking/internal/doctor/postgres"
	"github.com/clinicore/clinic-booking/internal/invitation"
	invitationdb "github.com/clinicore/clinic-booking/internal/invitation/postgres"
	"github.com/clinicore/clinic-booking/internal/organization"
	organizationdb "github.com/clinicore/clinic-booking/internal/organization/postgres"
	"github.com/clinicore/clinic-booking/internal/transport/rest"
	"github.com/clinicore/clinic-booking/internal/user"
	userdb "github.com/clinicore/clinic-booking/internal/user/postgres"
	"github.com/clinicore/clinic-booking/pkg/logger"
	"github.com/clinicore/clinic-booking/pkg/redislock"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	GormDB   *gorm.DB
	Redis    *redis.Client
	Router   *chi.Mux
	Handlers rest.Handlers
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Redis, deps.Handlers, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
		if deps.Redis != nil {
			if err := deps.Redis.Close(); err != nil {
				deps.Logger.Error("redis close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

// directories is the late-bound adapter the permission evaluator consults.
// The evaluator must exist before the doctor and appointment services, which
// in turn need the evaluator, so the fields are assigned after construction.
type directories struct {
	organizations *organization.Service
	doctors       *doctor.Service
	appointments  *appointment.Service
}

func (d *directories) ActiveLocationIDs(ctx context.Context, organizationID string) ([]string, error) {
	return d.organizations.ActiveLocationIDs(ctx, organizationID)
}

func (d *directories) DoctorIDByEmail(ctx context.Context, email string) (string, bool, error) {
	return d.doctors.DoctorIDByEmail(ctx, email)
}

func (d *directories) AppointmentDoctorID(ctx context.Context, appointmentID string) (string, bool, error) {
	return d.appointments.AppointmentDoctorID(ctx, appointmentID)
}

type userReader struct {
	users *user.Service
}

func (r *userReader) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.users.GetByEmail(ctx, email)
}

func (r *userReader) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.users.GetByID(ctx, id)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Logging.Level)
	log := logger.LoggerWrapper()

	gormDB, sqlxDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Username: config.Redis.Username,
			Password: config.Redis.Password,
		})
	}

	bus := events.NewEventBus(log)
	registerEventHandlers(bus, log)

	auditService := audit.NewService(auditdb.NewAuditRepository(gormDB), log)

	dirs := &directories{}
	resolver := authz.NewLocationResolver(dirs)
	evaluator := authz.NewEvaluator(authz.DefaultMatrix(), resolver, dirs, dirs, auditService, log)

	organizationService := organization.NewService(organizationdb.NewOrganizationRepository(gormDB), evaluator, auditService, log)
	dirs.organizations = organizationService
	doctorService := doctor.NewService(doctordb.NewDoctorRepository(gormDB), organizationService, evaluator, auditService, log)

	var locker appointment.Locker
	if redisClient != nil {
		locker = redislock.New(redisClient, "clinic:")
	}

	appointmentService := appointment.NewService(
		appointmentdb.NewAppointmentRepository(gormDB),
		doctorService,
		organizationService,
		evaluator,
		appointment.NewAvailabilityEngine(appointment.SystemClock()),
		locker,
		auditService,
		bus,
		log,
	)

	dirs.doctors = doctorService
	dirs.appointments = appointmentService

	invitationService := invitation.NewService(invitationdb.NewInvitationRepository(gormDB), evaluator, auditService, config.Security.InvitationTTL, log)

	userRepo := userdb.NewUserRepository(gormDB)
	tokens := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)

	// user and auth services depend on each other for password hashing and
	// lookups, so the reader is bound after both exist.
	reader := &userReader{}
	authService := auth.NewService(reader, tokens, config.Security.BCryptCost, log)
	userService := user.NewService(userRepo, authService, invitationService, log)
	reader.users = userService

	return &Dependencies{
		Config: config,
		DB:     sqlxDB,
		GormDB: gormDB,
		Redis:  redisClient,
		Router: chi.NewRouter(),
		Logger: log,
		Handlers: rest.Handlers{
			Auth:         auth.NewHandler(authService),
			User:         user.NewHandler(userService),
			Organization: organization.NewHandler(organizationService),
			Doctor:       doctor.NewHandler(doctorService),
			Appointment:  appointment.NewHandler(appointmentService),
			Invitation:   invitation.NewHandler(invitationService),
			Audit:        audit.NewHandler(auditService),
		},
	}, nil
}

func registerEventHandlers(bus *events.EventBus, log *slog.Logger) {
	lifecycle := []string{
		events.AppointmentBooked,
		events.AppointmentConfirmed,
		events.AppointmentRescheduled,
		events.AppointmentCompleted,
		events.AppointmentCancelled,
	}
	for _, eventType := range lifecycle {
		bus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
			log.Info("appointment lifecycle event",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"payload", event.Payload())
			return nil
		})
	}
}

func initDB(cfg internal.DatabaseConfig) (*gorm.DB, *sqlx.DB, error) {
	switch cfg.Driver {
	case "postgres":
		sqlxDB, err := sqlx.Connect("pgx", cfg.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
		}
		sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlxDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlxDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{
			TranslateError: true,
		})
		if err != nil {
			_ = sqlxDB.Close()
			return nil, nil, fmt.Errorf("failed to open gorm connection: %w", err)
		}
		return gormDB, sqlxDB, nil

	case "sqlite":
		gormDB, err := gorm.Open(sqlite.Open(cfg.Source), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite connection: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, err
		}
		return gormDB, sqlx.NewDb(sqlDB, "sqlite"), nil
	}

	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
