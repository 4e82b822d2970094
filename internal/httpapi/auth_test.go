package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/store/memory"
)

type sessionRecorder struct {
	mu     sync.Mutex
	events []domain.SessionEvent
	owners []string
}

func (r *sessionRecorder) record(event domain.SessionEvent, session domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.owners = append(r.owners, session.UserID)
}

func (r *sessionRecorder) snapshot() []domain.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SessionEvent(nil), r.events...)
}

func TestSignUpSignInAndSignOut(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, memory.New(), nil)
	recorder := &sessionRecorder{}
	unsubscribe, err := auth.OnSessionChange(recorder.record)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	created, err := auth.SignUp(context.Background(), domain.SignUpRequest{Email: " Owner@Shop.test ", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if created.Email != "owner@shop.test" || created.UserID == "" || created.AccessToken == "" {
		t.Fatalf("unexpected session: %+v", created)
	}

	session, err := auth.SignIn(context.Background(), domain.SignInRequest{Email: "owner@shop.test", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.UserID != created.UserID {
		t.Fatalf("expected same owner, got %s and %s", session.UserID, created.UserID)
	}

	actor, err := auth.ParseToken(session.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.UserID != created.UserID || actor.Email != "owner@shop.test" {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	if err := auth.SignOut(session.AccessToken); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := auth.GetSession(session.AccessToken); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected revoked token rejected, got %v", err)
	}
	if _, err := auth.GetSession(created.AccessToken); err != nil {
		t.Fatalf("expected other session still valid, got %v", err)
	}

	events := recorder.snapshot()
	want := []domain.SessionEvent{domain.SessionSignedIn, domain.SessionSignedIn, domain.SessionSignedOut}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}

func TestSignUpRejectsDuplicateAndWeakInput(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, memory.New(), nil)
	ctx := context.Background()

	if _, err := auth.SignUp(ctx, domain.SignUpRequest{Email: "owner@shop.test", Password: "hunter22"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	cases := []struct {
		name     string
		req      domain.SignUpRequest
		want     string
		conflict bool
	}{
		{name: "duplicate", req: domain.SignUpRequest{Email: "OWNER@shop.test", Password: "hunter22"}, want: "already registered", conflict: true},
		{name: "short password", req: domain.SignUpRequest{Email: "new@shop.test", Password: "123"}, want: "at least 6"},
		{name: "bad email", req: domain.SignUpRequest{Email: "not-an-email", Password: "hunter22"}, want: "valid email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.SignUp(ctx, tc.req)
			if !errors.Is(err, domain.ErrAuthFailed) || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected ErrAuthFailed mentioning %q, got %v", tc.want, err)
			}
			if got := errors.Is(err, store.ErrConflict); got != tc.conflict {
				t.Fatalf("expected conflict=%v, got %v (%v)", tc.conflict, got, err)
			}
		})
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, memory.New(), nil)
	ctx := context.Background()

	if _, err := auth.SignUp(ctx, domain.SignUpRequest{Email: "owner@shop.test", Password: "hunter22"}); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := auth.SignIn(ctx, domain.SignInRequest{Email: "owner@shop.test", Password: "hunter23"}); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if _, err := auth.SignIn(ctx, domain.SignInRequest{Email: "nobody@shop.test", Password: "hunter22"}); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for unknown email, got %v", err)
	}
}

func TestTokenFromOtherSecretRejected(t *testing.T) {
	repo := memory.New()
	issuer := NewAuthManager("first-secret-key-with-enough-length", time.Hour, repo, nil)
	verifier := NewAuthManager("second-secret-key-with-enough-length", time.Hour, repo, nil)

	session, err := issuer.SignUp(context.Background(), domain.SignUpRequest{Email: "owner@shop.test", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := verifier.ParseToken(session.AccessToken); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, memory.New(), nil)
	auth.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }

	session, err := auth.SignUp(context.Background(), domain.SignUpRequest{Email: "owner@shop.test", Password: "hunter22"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := auth.ParseToken(session.AccessToken); !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}
