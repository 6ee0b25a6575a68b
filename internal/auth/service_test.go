package auth_test

import (
	"context"
	"testing"
	"time"

	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/auth"
	"github.com/clinicore/clinic-booking/internal/user"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Module Suite")
}

type mockUserReader struct {
	byEmail map[string]*user.User
	byID    map[uuid.UUID]*user.User
}

func newMockUserReader() *mockUserReader {
	return &mockUserReader{
		byEmail: make(map[string]*user.User),
		byID:    make(map[uuid.UUID]*user.User),
	}
}

func (m *mockUserReader) add(u *user.User) {
	m.byEmail[u.Email] = u
	m.byID[u.ID] = u
}

func (m *mockUserReader) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (m *mockUserReader) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

var _ = Describe("Auth service", func() {
	var (
		svc    *auth.Service
		users  *mockUserReader
		tokens *auth.JWTTokenGenerator
		active *user.User
	)

	BeforeEach(func() {
		users = newMockUserReader()
		tokens = auth.NewJWTTokenGenerator("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = auth.NewService(users, tokens, bcrypt.MinCost, logger)

		hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())

		active = &user.User{
			ID:           uuid.New(),
			Email:        "desk@clinic.dev",
			PasswordHash: string(hash),
			Role:         user.RoleReceptionist,
			IsActive:     true,
		}
		users.add(active)
	})

	Describe("Authenticate", func() {
		It("returns a token pair for valid credentials", func() {
			pair, err := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "desk@clinic.dev",
				Password: "correct-horse",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(pair.AccessToken).NotTo(BeEmpty())
			Expect(pair.RefreshToken).NotTo(BeEmpty())

			claims, err := tokens.ValidateAccessToken(pair.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal(active.ID.String()))
			Expect(claims.Role).To(Equal(string(user.RoleReceptionist)))
		})

		It("answers a wrong password and an unknown email identically", func() {
			_, badPassword := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "desk@clinic.dev",
				Password: "wrong",
			})
			_, unknownEmail := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "nobody@clinic.dev",
				Password: "correct-horse",
			})

			Expect(badPassword).To(MatchError(internal.ErrInvalidCredentials))
			Expect(unknownEmail).To(MatchError(internal.ErrInvalidCredentials))
		})

		It("rejects an inactive account even with the right password", func() {
			active.IsActive = false

			_, err := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "desk@clinic.dev",
				Password: "correct-horse",
			})

			Expect(err).To(MatchError(internal.ErrUserInactive))
		})
	})

	Describe("RefreshTokens", func() {
		It("issues a fresh pair from a valid refresh token", func() {
			pair, err := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "desk@clinic.dev",
				Password: "correct-horse",
			})
			Expect(err).NotTo(HaveOccurred())

			refreshed, err := svc.RefreshTokens(context.Background(), pair.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(refreshed.AccessToken).NotTo(BeEmpty())
		})

		It("refuses an access token on the refresh path", func() {
			pair, err := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "desk@clinic.dev",
				Password: "correct-horse",
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.RefreshTokens(context.Background(), pair.AccessToken)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("stops refreshing once the account is deactivated", func() {
			pair, err := svc.Authenticate(context.Background(), auth.LoginDTO{
				Email:    "desk@clinic.dev",
				Password: "correct-horse",
			})
			Expect(err).NotTo(HaveOccurred())

			active.IsActive = false

			_, err = svc.RefreshTokens(context.Background(), pair.RefreshToken)
			Expect(err).To(MatchError(internal.ErrUserInactive))
		})
	})
})

var _ = Describe("JWTTokenGenerator", func() {
	It("rejects tokens signed with a different secret", func() {
		issuer := auth.NewJWTTokenGenerator("secret-a", "refresh-a", time.Minute, time.Minute)
		verifier := auth.NewJWTTokenGenerator("secret-b", "refresh-b", time.Minute, time.Minute)

		token, err := issuer.GenerateAccessToken(uuid.NewString(), "a@b.dev", "DOCTOR")
		Expect(err).NotTo(HaveOccurred())

		_, err = verifier.ValidateAccessToken(token)
		Expect(err).To(MatchError(internal.ErrInvalidToken))
	})

	It("reports expiry distinctly from invalidity", func() {
		gen := auth.NewJWTTokenGenerator("secret", "refresh", time.Minute, time.Minute)
		gen.AccessTokenTTL = -time.Minute

		token, err := gen.GenerateAccessToken(uuid.NewString(), "a@b.dev", "DOCTOR")
		Expect(err).NotTo(HaveOccurred())

		_, err = gen.ValidateAccessToken(token)
		Expect(err).To(MatchError(internal.ErrTokenExpired))
	})
})
