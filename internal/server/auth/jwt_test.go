package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dsantanna/biolock/internal/common"
)

func newTestIssuer(accessTTL, refreshTTL time.Duration) *Issuer {
	return NewIssuer([]byte("access-secret"), []byte("refresh-secret"), accessTTL, refreshTTL)
}

func TestIssueAndVerifyAccess_Success(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(time.Hour, 24*time.Hour)

	tok, err := i.IssueAccess(42, "alice", 3)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	claims, err := i.VerifyAccess(tok)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	if claims.UserID != 42 || claims.Nickname != "alice" || claims.Role != 3 {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestVerifyAccess_Expired(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(-1*time.Second, 24*time.Hour)

	tok, err := i.IssueAccess(1, "bob", 3)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	_, err = i.VerifyAccess(tok)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyAccess_RejectsRefreshToken(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(time.Hour, 24*time.Hour)

	refresh, err := i.IssueRefresh(7)
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	// signed with the refresh secret, so the access verifier must reject it
	if _, err := i.VerifyAccess(refresh); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRefresh_Success(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(time.Hour, 24*time.Hour)

	tok, err := i.IssueRefresh(7)
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	claims, err := i.VerifyRefresh(tok)
	if err != nil {
		t.Fatalf("VerifyRefresh error: %v", err)
	}
	if claims.UserID != 7 {
		t.Fatalf("userID mismatch: got %d want 7", claims.UserID)
	}
}

func TestIssueRefresh_UniquePerIssuance(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(time.Hour, 24*time.Hour)

	// back-to-back issuance lands in the same second; the tokens are stored
	// under a unique index, so they must still differ
	t1, err := i.IssueRefresh(7)
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}
	t2, err := i.IssueRefresh(7)
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}
	if t1 == t2 {
		t.Fatalf("two refresh tokens issued back to back are identical")
	}

	c1, err := i.VerifyRefresh(t1)
	if err != nil {
		t.Fatalf("VerifyRefresh error: %v", err)
	}
	c2, err := i.VerifyRefresh(t2)
	if err != nil {
		t.Fatalf("VerifyRefresh error: %v", err)
	}
	if c1.ID == "" || c1.ID == c2.ID {
		t.Fatalf("expected distinct token ids, got %q and %q", c1.ID, c2.ID)
	}
	if c1.UserID != 7 || c2.UserID != 7 {
		t.Fatalf("userID mismatch: %d, %d", c1.UserID, c2.UserID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(time.Hour, 24*time.Hour)
	other := NewIssuer([]byte("other"), []byte("other"), time.Hour, time.Hour)

	tok, err := i.IssueAccess(1, "carol", 2)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	if _, err := other.VerifyAccess(tok); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_MalformedString(t *testing.T) {
	t.Parallel()

	i := newTestIssuer(time.Hour, 24*time.Hour)
	if _, err := i.VerifyAccess("not.a.jwt"); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}
}
