// Package authn implements sign-up, sign-in, and bearer-token
// authentication. Tokens are HS256 JWTs whose jti points at a revocable
// session row; resolved identities are cached in Redis on the hot path.
package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrazmi/taskdeck/core/repositories/usersessionsrepo"
	"github.com/jrazmi/taskdeck/core/repositories/usersrepo"
	"github.com/jrazmi/taskdeck/infrastructure/identitycache"
	"github.com/jrazmi/taskdeck/sdk/cryptids"
	"github.com/jrazmi/taskdeck/sdk/environment"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

const bcryptCost = 12

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Options is the exportable auth configuration.
type Options struct {
	Secret   string        `env:"AUTH_SECRET" required:"true"`
	Issuer   string        `env:"AUTH_ISSUER" default:"taskdeck"`
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`
}

// Claims are the JWT claims carried by a sign-in token.
type Claims struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

type Service struct {
	log      *logger.Logger
	users    *usersrepo.Repository
	sessions *usersessionsrepo.Repository
	cache    *identitycache.Cache
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

// NewFromEnv builds a service configured from environment variables.
func NewFromEnv(prefix string, log *logger.Logger, users *usersrepo.Repository, sessions *usersessionsrepo.Repository, cache *identitycache.Cache) (*Service, error) {
	var cfg Options
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	return New(log, users, sessions, cache, cfg), nil
}

func New(log *logger.Logger, users *usersrepo.Repository, sessions *usersessionsrepo.Repository, cache *identitycache.Cache, cfg Options) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "taskdeck"
	}
	return &Service{
		log:      log,
		users:    users,
		sessions: sessions,
		cache:    cache,
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
		now:      time.Now,
	}
}

// Register creates a user account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (usersrepo.User, error) {
	if len(password) < 8 {
		return usersrepo.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return usersrepo.User{}, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.users.Create(ctx, usersrepo.CreateUser{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	})
	if err != nil {
		return usersrepo.User{}, err
	}

	return user, nil
}

// Login verifies the credentials and issues a bearer token backed by a new
// session row. A wrong email and a wrong password are indistinguishable to
// the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, usersrepo.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, usersrepo.ErrNotFound) {
			return "", usersrepo.User{}, ErrInvalidCredentials
		}
		return "", usersrepo.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", usersrepo.User{}, ErrInvalidCredentials
	}

	sessionID, err := cryptids.GenerateID()
	if err != nil {
		return "", usersrepo.User{}, fmt.Errorf("generating session id: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)

	session, err := s.sessions.Create(ctx, usersessionsrepo.CreateSession{
		SessionID: sessionID,
		UserID:    user.UserID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", usersrepo.User{}, err
	}

	claims := Claims{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.UserID,
			ID:        session.SessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", usersrepo.User{}, fmt.Errorf("signing token: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, identityFromSession(user, session))
	}

	s.log.InfoContext(ctx, "user signed in", "user_id", user.UserID)
	return token, user, nil
}

// Authenticate resolves a bearer token into an identity. The signature and
// expiry come from the JWT itself; revocation is checked against the cache
// first and the session row on a miss.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (identitycache.Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return identitycache.Identity{}, err
	}

	if s.cache != nil {
		if identity, ok := s.cache.Get(ctx, claims.ID); ok {
			return identity, nil
		}
	}

	session, err := s.sessions.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, usersessionsrepo.ErrNotFound) {
			return identitycache.Identity{}, ErrInvalidToken
		}
		return identitycache.Identity{}, err
	}
	if !session.Active(s.now()) {
		return identitycache.Identity{}, ErrSessionRevoked
	}

	identity := identitycache.Identity{
		SessionID:   session.SessionID,
		UserID:      session.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		ExpiresAt:   session.ExpiresAt,
	}

	if s.cache != nil {
		s.cache.Set(ctx, identity)
	}

	return identity, nil
}

// Logout revokes the token's session and evicts it from the cache.
func (s *Service) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(ctx, claims.ID)
	}

	return nil
}

// LogoutAll revokes every session belonging to the token's user, the
// presented one included, and evicts each from the cache. The token must
// itself still be valid to prove the caller owns the account.
func (s *Service) LogoutAll(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}

	ids, err := s.sessions.RevokeAllForUser(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if s.cache != nil {
		for _, id := range ids {
			s.cache.Delete(ctx, id)
		}
	}

	return nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func identityFromSession(user usersrepo.User, session usersessionsrepo.Session) identitycache.Identity {
	return identitycache.Identity{
		SessionID:   session.SessionID,
		UserID:      user.UserID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		ExpiresAt:   session.ExpiresAt,
	}
}
