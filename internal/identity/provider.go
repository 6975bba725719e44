// Package identity authenticates users and issues the signed session tokens the API
// boundary uses to identify callers.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserInactive       = errors.New("user is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
)

const DefaultTokenTTL = 24 * time.Hour

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type Provider struct {
	users    UserRepository
	secret   []byte
	ttl      time.Duration
	hashCost int
	now      func() time.Time

	// compared against when the username is unknown so both paths cost a bcrypt check
	dummyHash []byte
}

type claims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

func New(users UserRepository, secret string, ttl time.Duration) (*Provider, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	p := &Provider{
		users:    users,
		secret:   []byte(secret),
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	p.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("shipbox-dummy"), bcrypt.MinCost)
	return p, nil
}

func (p *Provider) WithHashCost(cost int) *Provider {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		p.hashCost = cost
	}
	return p
}

func (p *Provider) WithClock(now func() time.Time) *Provider {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *Provider) CreateUser(ctx context.Context, username, password string, isAdmin bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, models.NewValidationError("username and password are required", "username", "password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		IsAdmin:      isAdmin,
		Active:       true,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (models.Identity, error) {
	u, err := p.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(password))
		return models.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return models.Identity{}, ErrInvalidCredentials
	}
	if !u.Active {
		return models.Identity{}, ErrUserInactive
	}
	return toIdentity(u), nil
}

func (p *Provider) IssueToken(id models.Identity) (string, error) {
	now := p.now()
	c := claims{
		Username: id.Username,
		Admin:    id.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Login authenticates and issues a token in one step.
func (p *Provider) Login(ctx context.Context, username, password string) (string, models.Identity, error) {
	id, err := p.Authenticate(ctx, username, password)
	if err != nil {
		return "", models.Identity{}, err
	}
	token, err := p.IssueToken(id)
	if err != nil {
		return "", models.Identity{}, err
	}
	return token, id, nil
}

// ValidateToken checks the signature and expiry, then re-resolves the subject so that
// deactivated users and revoked admin rights take effect immediately.
func (p *Provider) ValidateToken(ctx context.Context, token string) (models.Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || c.Subject == "" {
		return models.Identity{}, ErrInvalidToken
	}

	id, err := p.Resolve(ctx, c.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return models.Identity{}, ErrInvalidToken
	}
	return id, err
}

func (p *Provider) Resolve(ctx context.Context, id string) (models.Identity, error) {
	u, err := p.users.GetUserByID(ctx, id)
	if err != nil {
		return models.Identity{}, err
	}
	if !u.Active {
		return models.Identity{}, ErrUserInactive
	}
	return toIdentity(u), nil
}

// Username returns the display name of a user whether or not the account is still active.
func (p *Provider) Username(ctx context.Context, id string) (string, error) {
	u, err := p.users.GetUserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func toIdentity(u *models.User) models.Identity {
	return models.Identity{ID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}
}
