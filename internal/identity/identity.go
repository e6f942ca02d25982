// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package identity registers users, verifies credentials and issues the
// session tokens that gate every content operation. Password hashing,
// token signing, revocation and time are injected collaborators.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"quillpress/internal/apperr"
	"quillpress/internal/models"
	"quillpress/internal/store"
)

// Field limits.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 50
	MaxEmailLen    = 200
	MinPasswordLen = 8
	MaxPasswordLen = 100
	MaxNameLen     = 50
	MaxLoginLen    = 200
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)

	errThrottled    = errors.New("too many attempts")
	errUnknownUser  = errors.New("unknown user")
	errInactiveUser = errors.New("inactive user")
)

// Session is the result of a successful authentication.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role // empty means user
}

// ProfileInput is a partial profile update. Nil fields are left unchanged.
type ProfileInput struct {
	Email     *string
	FirstName *string
	LastName  *string
}

// Manager implements registration, authentication and account management.
type Manager struct {
	gw       store.Gateway
	signer   TokenSigner
	hasher   Hasher
	revoker  Revoker
	throttle *Throttle
	now      Clock
	ttl      time.Duration
	log      *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Manager.
type Option func(*Manager)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h Hasher) Option { return func(m *Manager) { m.hasher = h } }

// WithRevoker sets the revocation list consulted on every validation.
func WithRevoker(r Revoker) Option { return func(m *Manager) { m.revoker = r } }

// WithThrottle limits login attempts per identifier.
func WithThrottle(t *Throttle) Option { return func(m *Manager) { m.throttle = t } }

// WithClock sets the time source.
func WithClock(now Clock) Option { return func(m *Manager) { m.now = now } }

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option { return func(m *Manager) { m.ttl = ttl } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// NewManager returns a Manager persisting through gw and signing with signer.
func NewManager(gw store.Gateway, signer TokenSigner, opts ...Option) *Manager {
	m := &Manager{
		gw:      gw,
		signer:  signer,
		hasher:  BcryptHasher{Cost: DefaultBcryptCost},
		revoker: NopRevoker{},
		now:     time.Now,
		ttl:     DefaultTokenTTL,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates a new account.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Role == "" {
		in.Role = models.RoleUser
	}

	var v apperr.Validation
	validateUsername(&v, in.Username)
	validateEmail(&v, in.Email)
	validatePassword(&v, "password", in.Password)
	validateName(&v, "first_name", in.FirstName)
	validateName(&v, "last_name", in.LastName)
	v.Check(in.Role.Valid(), "role", "must be one of user, editor, admin")
	if err := v.Err(); err != nil {
		return nil, err
	}

	users := m.gw.Users()
	taken, err := users.UsernameTaken(ctx, in.Username)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if taken {
		return nil, apperr.Conflict("username is already taken", nil)
	}
	taken, err = users.EmailTaken(ctx, in.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if taken {
		return nil, apperr.Conflict("email is already registered", nil)
	}

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user, err := users.Create(ctx, &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		IsActive:     true,
	})
	if err != nil {
		return nil, translateUserErr(err)
	}

	m.log.Info("user registered", "id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

// Authenticate verifies credentials and issues a session token. Every
// failure returns the same AuthenticationFailed error.
func (m *Manager) Authenticate(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	login := strings.TrimSpace(usernameOrEmail)
	if m.throttle != nil && !m.throttle.Allow(strings.ToLower(login)) {
		m.log.Warn("login throttled", "login", login)
		return nil, apperr.AuthenticationFailed(errThrottled)
	}
	if login == "" || utf8.RuneCountInString(login) > MaxLoginLen {
		m.verifyDummy(password)
		return nil, apperr.AuthenticationFailed(errUnknownUser)
	}

	user, err := m.lookup(ctx, login)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		m.verifyDummy(password)
		return nil, apperr.AuthenticationFailed(errUnknownUser)
	}
	if err := m.hasher.Verify(user.PasswordHash, password); err != nil {
		m.log.Info("login failed", "user_id", user.ID)
		return nil, apperr.AuthenticationFailed(err)
	}
	if !user.IsActive {
		m.log.Info("login refused for inactive user", "user_id", user.ID)
		return nil, apperr.AuthenticationFailed(errInactiveUser)
	}

	now := m.now()
	if err := m.gw.Users().TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, apperr.Internal(err)
	}
	user.LastLoginAt = &now

	expires := now.Add(m.ttl)
	token, err := m.signer.Issue(Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	m.log.Info("user authenticated", "user_id", user.ID)
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// lookup finds a user by exact username, then by email.
func (m *Manager) lookup(ctx context.Context, login string) (*models.User, error) {
	users := m.gw.Users()
	user, err := users.FindByUsername(ctx, login)
	if err != nil || user != nil {
		return user, err
	}
	if !strings.Contains(login, "@") {
		return nil, nil
	}
	return users.FindByEmail(ctx, normalizeEmail(login))
}

// verifyDummy spends the same work as a real password check so unknown
// identifiers cannot be told apart by response time.
func (m *Manager) verifyDummy(password string) {
	m.dummyOnce.Do(func() {
		h, err := m.hasher.Hash("quillpress-dummy-password")
		if err != nil {
			m.log.Error("dummy hash", "error", err)
		}
		m.dummyHash = h
	})
	_ = m.hasher.Verify(m.dummyHash, password)
}

// ValidateToken verifies a token and returns its claims. Expired, tampered
// and revoked tokens, and tokens of missing or inactive users, all fail with
// AuthenticationFailed.
func (m *Manager) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil, apperr.AuthenticationFailed(err)
	}

	revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if revoked {
		return nil, apperr.AuthenticationFailed(errors.New("token revoked"))
	}

	id, err := claims.UserID()
	if err != nil {
		return nil, apperr.AuthenticationFailed(err)
	}
	user, err := m.gw.Users().FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, apperr.AuthenticationFailed(errUnknownUser)
	}
	if !user.IsActive {
		return nil, apperr.AuthenticationFailed(errInactiveUser)
	}
	// The stored role wins over the one baked into the token.
	claims.Role = user.Role
	return claims, nil
}

// ActorFromToken validates token and returns the actor it identifies.
func (m *Manager) ActorFromToken(ctx context.Context, token string) (Actor, error) {
	claims, err := m.ValidateToken(ctx, token)
	if err != nil {
		return Actor{}, err
	}
	id, _ := claims.UserID()
	return Actor{UserID: id, Role: claims.Role}, nil
}

// Logout revokes the token until its natural expiry.
func (m *Manager) Logout(ctx context.Context, token string) error {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return apperr.AuthenticationFailed(err)
	}
	if err := m.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return apperr.Internal(err)
	}
	m.log.Info("token revoked", "user_id", claims.Subject, "jti", claims.ID)
	return nil
}

// ChangePassword replaces the actor's password after verifying the current one.
func (m *Manager) ChangePassword(ctx context.Context, actor Actor, current, next string) error {
	user, err := m.find(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := m.hasher.Verify(user.PasswordHash, current); err != nil {
		return apperr.AuthenticationFailed(err)
	}

	var v apperr.Validation
	validatePassword(&v, "new_password", next)
	v.Check(next != current, "new_password", "must differ from the current password")
	if err := v.Err(); err != nil {
		return err
	}

	hash, err := m.hasher.Hash(next)
	if err != nil {
		return apperr.Internal(err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = m.now()
	if err := m.gw.Users().Update(ctx, user); err != nil {
		return translateUserErr(err)
	}

	m.log.Info("password changed", "user_id", user.ID)
	return nil
}

// GetByID returns a user or NotFound.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.find(ctx, id)
}

// UpdateProfile changes email and names. Users may edit themselves; admins
// may edit anyone.
func (m *Manager) UpdateProfile(ctx context.Context, actor Actor, id uuid.UUID, in ProfileInput) (*models.User, error) {
	if actor.UserID != id && !actor.IsAdmin() {
		return nil, apperr.Unauthorized("only the account owner or an admin can edit a profile")
	}
	user, err := m.find(ctx, id)
	if err != nil {
		return nil, err
	}

	var v apperr.Validation
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
		validateEmail(&v, user.Email)
	}
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
		validateName(&v, "first_name", user.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
		validateName(&v, "last_name", user.LastName)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if in.Email != nil {
		other, err := m.gw.Users().FindByEmail(ctx, user.Email)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if other != nil && other.ID != user.ID {
			return nil, apperr.Conflict("email is already registered", nil)
		}
	}

	user.UpdatedAt = m.now()
	if err := m.gw.Users().Update(ctx, user); err != nil {
		return nil, translateUserErr(err)
	}
	return user, nil
}

// SetActive enables or disables an account. Admin only; admins cannot
// deactivate themselves. Posts of a deactivated user stay visible.
func (m *Manager) SetActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Unauthorized("only an admin can change account status")
	}
	if actor.UserID == id && !active {
		return nil, apperr.Invalid("is_active", "admins cannot deactivate their own account")
	}
	user, err := m.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsActive == active {
		return user, nil
	}

	user.IsActive = active
	user.UpdatedAt = m.now()
	if err := m.gw.Users().Update(ctx, user); err != nil {
		return nil, translateUserErr(err)
	}
	m.log.Info("user status changed", "user_id", id, "active", active, "by", actor.UserID)
	return user, nil
}

// SetRole changes an account's role. Admin only; admins cannot demote
// themselves.
func (m *Manager) SetRole(ctx context.Context, actor Actor, id uuid.UUID, role models.Role) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Unauthorized("only an admin can change roles")
	}
	if !role.Valid() {
		return nil, apperr.Invalid("role", "must be one of user, editor, admin")
	}
	if actor.UserID == id && role != models.RoleAdmin {
		return nil, apperr.Invalid("role", "admins cannot demote themselves")
	}
	user, err := m.find(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Role = role
	user.UpdatedAt = m.now()
	if err := m.gw.Users().Update(ctx, user); err != nil {
		return nil, translateUserErr(err)
	}
	m.log.Info("user role changed", "user_id", id, "role", role, "by", actor.UserID)
	return user, nil
}

func (m *Manager) find(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := m.gw.Users().FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, apperr.NotFound("user", id)
	}
	return user, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateUsername(v *apperr.Validation, s string) {
	n := utf8.RuneCountInString(s)
	v.Check(n >= MinUsernameLen && n <= MaxUsernameLen, "username",
		fmt.Sprintf("must be between %d and %d characters", MinUsernameLen, MaxUsernameLen))
	v.Check(n == 0 || usernamePattern.MatchString(s), "username",
		"can only contain letters, numbers, and underscores")
}

func validateEmail(v *apperr.Validation, s string) {
	v.Check(s != "", "email", "is required")
	v.Check(utf8.RuneCountInString(s) <= MaxEmailLen, "email",
		fmt.Sprintf("cannot exceed %d characters", MaxEmailLen))
	v.Check(s == "" || emailPattern.MatchString(s), "email", "is not a valid email address")
}

func validatePassword(v *apperr.Validation, field, s string) {
	n := utf8.RuneCountInString(s)
	v.Check(n >= MinPasswordLen && n <= MaxPasswordLen, field,
		fmt.Sprintf("must be between %d and %d characters", MinPasswordLen, MaxPasswordLen))
}

func validateName(v *apperr.Validation, field, s string) {
	v.Check(utf8.RuneCountInString(s) <= MaxNameLen, field,
		fmt.Sprintf("cannot exceed %d characters", MaxNameLen))
}

// translateUserErr maps storage constraint errors to business errors.
func translateUserErr(err error) error {
	var ce *store.ConstraintError
	if errors.As(err, &ce) && errors.Is(err, store.ErrDuplicate) {
		switch ce.Constraint {
		case "users_email_key":
			return apperr.Conflict("email is already registered", err)
		default:
			return apperr.Conflict("username is already taken", err)
		}
	}
	return apperr.Internal(err)
}
