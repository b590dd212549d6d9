package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

func newTestService(t *testing.T, cfg *AuthConfig) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	repo := pallet.NewRepository(db)
	require.NoError(t, repo.AutoMigrate())

	if cfg == nil {
		cfg = DefaultAuthConfig()
	}
	cfg.Secret = "test-secret"
	svc, err := NewService(repo, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.CreateOperator(context.Background(), "jdupont", "s3cret", pallet.RoleUser))
	require.NoError(t, svc.CreateOperator(context.Background(), "chef", "boss", pallet.RoleAdmin))
	return svc
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(nil, DefaultAuthConfig(), nil)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	tok, err := svc.Login(ctx, "jdupont", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, pallet.Operator{Name: "jdupont", Role: pallet.RoleUser}, tok.Operator)

	op, err := svc.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tok.Operator, op)

	_, err = svc.Login(ctx, "jdupont", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := DefaultAuthConfig()
	cfg.LoginPerMinute = 1
	cfg.LoginBurst = 2
	svc := newTestService(t, cfg)
	ctx := context.Background()

	_, err := svc.Login(ctx, "jdupont", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "jdupont", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "jdupont", "s3cret")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Other logins have their own budget.
	_, err = svc.Login(ctx, "chef", "boss")
	assert.NoError(t, err)
}

func TestVerify_Rejects(t *testing.T) {
	svc := newTestService(t, nil)
	tok, err := svc.Issue(pallet.Operator{Name: "jdupont", Role: pallet.RoleUser})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		svc.clock = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { svc.clock = time.Now }()
		_, err := svc.Verify(tok.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := *svc.cfg
		other.Secret = "another"
		forged, err := (&Service{cfg: &other, clock: time.Now}).Issue(pallet.Operator{Name: "x", Role: pallet.RoleAdmin})
		require.NoError(t, err)
		_, err = svc.Verify(forged.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := Claims{Role: pallet.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			Issuer:    "apimdo-backend",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestCreateOperator_Validation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	assert.ErrorIs(t, svc.CreateOperator(ctx, "", "pw", pallet.RoleUser), pallet.ErrValidation)
	assert.ErrorIs(t, svc.CreateOperator(ctx, "x", "pw", pallet.Role("root")), pallet.ErrValidation)

	// Saving again replaces the password.
	require.NoError(t, svc.CreateOperator(ctx, "jdupont", "new", pallet.RoleUser))
	_, err := svc.Login(ctx, "jdupont", "new")
	assert.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t, nil)
	admin, err := svc.Issue(pallet.Operator{Name: "chef", Role: pallet.RoleAdmin})
	require.NoError(t, err)
	user, err := svc.Issue(pallet.Operator{Name: "jdupont", Role: pallet.RoleUser})
	require.NoError(t, err)

	var seen pallet.Operator
	handler := Middleware(svc)(RequireRole(pallet.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"user role", "Bearer " + user.AccessToken, http.StatusForbidden},
		{"admin", "bearer " + admin.AccessToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/archives", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "chef", seen.Name)
}

func TestRequireRole_WithoutMiddleware(t *testing.T) {
	handler := RequireRole(pallet.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthConfigFromEnv(t *testing.T) {
	t.Setenv("PALLET_AUTH_SECRET", "k")
	t.Setenv("PALLET_AUTH_TOKEN_TTL_MINUTES", "15")
	t.Setenv("PALLET_AUTH_LOGIN_PER_MINUTE", "x")

	cfg := AuthConfigFromEnv()
	assert.Equal(t, "k", cfg.Secret)
	assert.Equal(t, "pallet-registry", cfg.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5, cfg.LoginPerMinute)
}
