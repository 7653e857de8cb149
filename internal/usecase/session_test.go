package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WyiZhng/dense-platform-iam/internal/infra/security"
)

func TestSessionServiceCreateAndValidate(t *testing.T) {
	sessions := newSessionRepoMock()
	svc := NewSessionService(sessions, nil, nil, time.Hour, nil)

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	created, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if created.Token == "" || created.SessionID == "" {
		t.Fatalf("missing token or session id: %+v", created)
	}
	if !created.ExpiresAt.Equal(fixed.Add(time.Hour)) {
		t.Fatalf("expiry = %v, want %v", created.ExpiresAt, fixed.Add(time.Hour))
	}

	// Only the hash lands in storage.
	stored := sessions.cres[0]
	if stored.TokenHash == created.Token {
		t.Fatalf("raw token stored")
	}
	if stored.TokenHash != security.HashToken(created.Token) {
		t.Fatalf("stored hash does not match token")
	}
	if stored.IP == nil || *stored.IP != "10.0.0.1" {
		t.Fatalf("client ip not recorded")
	}

	sctx, err := svc.ValidateSession(context.Background(), created.Token)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if sctx.UserID != "alice" || sctx.SessionID != created.SessionID {
		t.Fatalf("unexpected session context: %+v", sctx)
	}
	if len(sessions.touched) != 1 {
		t.Fatalf("expected touch on validation, got %d", len(sessions.touched))
	}
}

func TestSessionServiceValidateRejections(t *testing.T) {
	sessions := newSessionRepoMock()
	svc := NewSessionService(sessions, nil, nil, time.Hour, nil)

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return fixed })

	created, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if _, err := svc.ValidateSession(context.Background(), "no-such-token"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for unknown token, got %v", err)
	}

	// Exactly at expiry the session is no longer usable.
	svc.WithClock(func() time.Time { return fixed.Add(time.Hour) })
	if _, err := svc.ValidateSession(context.Background(), created.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired at expiry instant, got %v", err)
	}

	// One nanosecond earlier it still is.
	svc.WithClock(func() time.Time { return fixed.Add(time.Hour - time.Nanosecond) })
	if _, err := svc.ValidateSession(context.Background(), created.Token); err != nil {
		t.Fatalf("expected valid session just before expiry, got %v", err)
	}

	// Revoked sessions are invalid, not expired.
	svc.WithClock(func() time.Time { return fixed })
	if _, err := svc.InvalidateSession(context.Background(), created.Token, "logout"); err != nil {
		t.Fatalf("InvalidateSession returned error: %v", err)
	}
	if _, err := svc.ValidateSession(context.Background(), created.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for revoked token, got %v", err)
	}
}

func TestSessionServiceRefreshExtendsFromNow(t *testing.T) {
	sessions := newSessionRepoMock()
	svc := NewSessionService(sessions, nil, nil, time.Hour, nil)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return start })

	created, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	later := start.Add(40 * time.Minute)
	svc.WithClock(func() time.Time { return later })

	refreshed, err := svc.RefreshSession(context.Background(), created.Token)
	if err != nil {
		t.Fatalf("RefreshSession returned error: %v", err)
	}
	if !refreshed.ExpiresAt.Equal(later.Add(time.Hour)) {
		t.Fatalf("refresh expiry = %v, want %v", refreshed.ExpiresAt, later.Add(time.Hour))
	}
	if refreshed.Token != created.Token {
		t.Fatalf("refresh must keep the same token")
	}

	// An expired session cannot be refreshed back to life.
	svc.WithClock(func() time.Time { return later.Add(2 * time.Hour) })
	if _, err := svc.RefreshSession(context.Background(), created.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionServiceInvalidatePublishesEvent(t *testing.T) {
	sessions := newSessionRepoMock()
	events := &publisherMock{}
	svc := NewSessionService(sessions, events, nil, time.Hour, nil)

	created, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	revoked, err := svc.InvalidateSession(context.Background(), created.Token, "logout")
	if err != nil {
		t.Fatalf("InvalidateSession returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected a live session to report revoked")
	}
	if len(events.revoked) != 1 {
		t.Fatalf("expected 1 revoked event, got %d", len(events.revoked))
	}
	if events.revoked[0].Reason != "logout" || events.revoked[0].SessionID != created.SessionID {
		t.Fatalf("unexpected revoked event: %+v", events.revoked[0])
	}

	// Idempotent: revoking again neither errors nor re-publishes, and the
	// repeat reports that nothing was revoked.
	revoked, err = svc.InvalidateSession(context.Background(), created.Token, "logout")
	if err != nil {
		t.Fatalf("second InvalidateSession returned error: %v", err)
	}
	if revoked {
		t.Fatalf("repeat revocation should report false")
	}
	if len(events.revoked) != 1 {
		t.Fatalf("revoked event republished")
	}

	// Unknown tokens are silently ignored.
	revoked, err = svc.InvalidateSession(context.Background(), "no-such-token", "logout")
	if err != nil {
		t.Fatalf("InvalidateSession for unknown token returned error: %v", err)
	}
	if revoked {
		t.Fatalf("unknown token should report false")
	}
}

func TestSessionServiceInvalidateAllForUser(t *testing.T) {
	sessions := newSessionRepoMock()
	events := &publisherMock{}
	svc := NewSessionService(sessions, events, nil, time.Hour, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"}); err != nil {
			t.Fatalf("CreateSession returned error: %v", err)
		}
	}
	if _, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "bob"}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	count, err := svc.InvalidateAllForUser(context.Background(), "alice", "password_reset")
	if err != nil {
		t.Fatalf("InvalidateAllForUser returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("revoked %d sessions, want 3", count)
	}
	if len(events.revoked) != 1 || events.revoked[0].Count != 3 {
		t.Fatalf("unexpected revoked events: %+v", events.revoked)
	}

	remaining, err := svc.ListUserSessions(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListUserSessions returned error: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("bob's session should be untouched")
	}
}

func TestSessionServiceCleanupExpired(t *testing.T) {
	sessions := newSessionRepoMock()
	svc := NewSessionService(sessions, nil, nil, time.Hour, nil)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return start })

	if _, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	svc.WithClock(func() time.Time { return start.Add(30 * time.Minute) })
	if _, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	// Past the first session's expiry, before the second's.
	svc.WithClock(func() time.Time { return start.Add(90 * time.Minute) })
	count, err := svc.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpired returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("deactivated %d sessions, want 1", count)
	}

	active, err := svc.ListUserSessions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListUserSessions returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 surviving session, got %d", len(active))
	}
}

func TestSessionServiceValidateSurvivesTouchFailure(t *testing.T) {
	sessions := newSessionRepoMock()
	sessions.touchErr = errStoreDown
	svc := NewSessionService(sessions, nil, nil, time.Hour, nil)

	created, err := svc.CreateSession(context.Background(), CreateSessionInput{UserID: "alice"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if _, err := svc.ValidateSession(context.Background(), created.Token); err != nil {
		t.Fatalf("validation should survive touch failure, got %v", err)
	}
}
