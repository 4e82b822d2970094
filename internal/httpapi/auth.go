package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/logging"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/xid"
)

const sessionTopic = "session"

// SessionListener receives sign-in and sign-out events.
type SessionListener func(event domain.SessionEvent, session domain.Session)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
}

// AuthManager is the session gateway: it registers owners, issues signed
// sessions and announces session changes on the event bus.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	bus      EventBus.Bus
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
}

func (c *sessionClaims) session(token string) domain.Session {
	session := domain.Session{AccessToken: token, UserID: c.Subject, Email: c.Email}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time
	}
	return session
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore, logger *zap.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		bus:      EventBus.New(),
		logger:   logging.OrNop(logger).Named("auth"),
		now:      func() time.Time { return time.Now().UTC() },
		revoked:  make(map[string]time.Time),
	}
}

// SignUp registers a new owner and signs them in.
func (a *AuthManager) SignUp(ctx context.Context, req domain.SignUpRequest) (domain.Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Session{}, err
	}
	if len(req.Password) < 6 {
		return domain.Session{}, fmt.Errorf("%w: password must be at least 6 characters", domain.ErrAuthFailed)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		ID:        xid.New("usr"),
		Email:     email,
		Password:  passwordHash,
		CreatedAt: a.now(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Session{}, fmt.Errorf("%w: email already registered: %w", domain.ErrAuthFailed, store.ErrConflict)
		}
		return domain.Session{}, fmt.Errorf("create user: %w", err)
	}

	a.logger.Info("owner registered", zap.String("owner", user.ID))
	return a.open(user)
}

func (a *AuthManager) SignIn(ctx context.Context, req domain.SignInRequest) (domain.Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Session{}, err
	}
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, fmt.Errorf("%w: invalid credentials", domain.ErrAuthFailed)
		}
		return domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !verifyPassword(user.Password, req.Password) {
		return domain.Session{}, fmt.Errorf("%w: invalid credentials", domain.ErrAuthFailed)
	}
	return a.open(*user)
}

// GetSession resolves a bearer token into the session it was issued for.
func (a *AuthManager) GetSession(token string) (domain.Session, error) {
	claims, err := a.parse(token)
	if err != nil {
		return domain.Session{}, err
	}
	return claims.session(token), nil
}

func (a *AuthManager) ParseToken(token string) (domain.Actor, error) {
	claims, err := a.parse(token)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{UserID: claims.Subject, Email: claims.Email}, nil
}

// SignOut revokes the token for the rest of its lifetime.
func (a *AuthManager) SignOut(token string) error {
	claims, err := a.parse(token)
	if err != nil {
		return err
	}
	session := claims.session(token)

	a.mu.Lock()
	now := a.now()
	for id, expires := range a.revoked {
		if expires.Before(now) {
			delete(a.revoked, id)
		}
	}
	a.revoked[claims.ID] = session.ExpiresAt
	a.mu.Unlock()

	a.logger.Info("owner signed out", zap.String("owner", session.UserID))
	a.bus.Publish(sessionTopic, domain.SessionSignedOut, session)
	return nil
}

// OnSessionChange registers fn for every session event. The returned func
// removes the listener.
func (a *AuthManager) OnSessionChange(fn SessionListener) (func(), error) {
	handler := func(event domain.SessionEvent, session domain.Session) {
		fn(event, session)
	}
	if err := a.bus.Subscribe(sessionTopic, handler); err != nil {
		return nil, err
	}
	return func() {
		_ = a.bus.Unsubscribe(sessionTopic, handler)
	}, nil
}

func (a *AuthManager) open(user domain.UserAccount) (domain.Session, error) {
	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.Session{}, err
	}
	session := domain.Session{
		AccessToken: token,
		UserID:      user.ID,
		Email:       user.Email,
		ExpiresAt:   expiresAt,
	}
	a.bus.Publish(sessionTopic, domain.SessionSignedIn, session)
	return session, nil
}

func (a *AuthManager) parse(tokenStr string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid or expired token", domain.ErrAuthFailed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token subject", domain.ErrAuthFailed)
	}

	a.mu.Lock()
	_, revoked := a.revoked[claims.ID]
	a.mu.Unlock()
	if revoked {
		return nil, fmt.Errorf("%w: session ended", domain.ErrAuthFailed)
	}
	return claims, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        xid.New("ses"),
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "onedesk",
		},
		Email: user.Email,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: a valid email is required", domain.ErrAuthFailed)
	}
	return email, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
