// Package auth authenticates operators against the Users table and issues
// the HS256 bearer tokens the HTTP API expects.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRateLimited        = errors.New("too many login attempts")
)

// Claims are the token claims. Subject is the operator login.
type Claims struct {
	Role pallet.Role `json:"role"`
	jwt.RegisteredClaims
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Operator    pallet.Operator `json:"operator"`
}

// Service verifies passwords and tokens.
type Service struct {
	repo   *pallet.Repository
	cfg    *AuthConfig
	logger *slog.Logger
	clock  func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a Service. The secret must be set.
func NewService(repo *pallet.Repository, cfg *AuthConfig, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultAuthConfig()
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// HashPassword returns the bcrypt hash stored in Users.Password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CreateOperator stores or replaces an operator account.
func (s *Service) CreateOperator(ctx context.Context, login, password string, role pallet.Role) error {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return &pallet.ValidationError{Field: "login", Message: "login and password are required"}
	}
	if role != pallet.RoleAdmin && role != pallet.RoleUser {
		return &pallet.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.repo.SaveOperator(ctx, &pallet.OperatorAccount{Login: login, PasswordHash: hash, Role: role})
}

func (s *Service) limiter(login string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[login]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(s.cfg.LoginPerMinute, 1))), max(s.cfg.LoginBurst, 1))
		s.limiters[login] = l
	}
	return l
}

// Login checks the password and issues a token.
func (s *Service) Login(ctx context.Context, login, password string) (*Token, error) {
	login = strings.TrimSpace(login)
	if !s.limiter(login).Allow() {
		s.logger.Warn("login rate limited", "login", login)
		return nil, ErrRateLimited
	}

	acct, err := s.repo.GetOperator(ctx, login)
	if err != nil {
		return nil, err
	}
	if acct == nil || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("login failed", "login", login)
		return nil, ErrInvalidCredentials
	}

	op := pallet.Operator{Name: acct.Login, Role: acct.Role}
	tok, err := s.Issue(op)
	if err != nil {
		return nil, err
	}
	s.logger.Info("operator logged in", "operator", op.Name, "role", op.Role)
	return tok, nil
}

// Issue signs a token for op.
func (s *Service) Issue(op pallet.Operator) (*Token, error) {
	now := s.clock()
	expires := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		Role: op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Name,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires, Operator: op}, nil
}

// Verify parses a token and returns the operator it names.
func (s *Service) Verify(token string) (pallet.Operator, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return pallet.Operator{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return pallet.Operator{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return pallet.Operator{Name: claims.Subject, Role: claims.Role}, nil
}
