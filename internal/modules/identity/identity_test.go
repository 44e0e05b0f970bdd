package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/shareloom/core/internal/middleware"
)

func testContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/contents/x/like", nil)
	return c
}

func TestResolvePrefersAuthenticatedUser(t *testing.T) {
	c := testContext(t)
	c.Set(middleware.ContextKeyUserID, "user-42")
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.1")

	ident := Resolve(c)
	if ident.UserID != "user-42" || ident.Fingerprint != "" {
		t.Fatalf("ident=%+v, want the authenticated user", ident)
	}
	if !ident.IsAuthenticated() {
		t.Fatal("authenticated identity must report as such")
	}
	if ident.Key() != "user-42" {
		t.Fatalf("key=%q", ident.Key())
	}
}

func TestResolveUsesForwardedForFirstHop(t *testing.T) {
	c := testContext(t)
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.1, 70.41.3.18, 150.172.238.178")
	c.Request.RemoteAddr = "10.0.0.1:33000"

	ident := Resolve(c)
	if ident.Fingerprint != "203.0.113.1" {
		t.Fatalf("fingerprint=%q, want the first forwarded hop", ident.Fingerprint)
	}
	if ident.IsAuthenticated() {
		t.Fatal("anonymous identity must not report authenticated")
	}
}

func TestResolveFallsBackToRemoteAddr(t *testing.T) {
	c := testContext(t)
	c.Request.RemoteAddr = "192.0.2.9:41000"

	ident := Resolve(c)
	if ident.Fingerprint != "192.0.2.9" {
		t.Fatalf("fingerprint=%q, want the peer host", ident.Fingerprint)
	}
}

func TestAnonymousSentinel(t *testing.T) {
	ident := Anonymous("", "")
	if ident.Fingerprint != SentinelFingerprint {
		t.Fatalf("fingerprint=%q, want sentinel", ident.Fingerprint)
	}
	if ident.Key() != SentinelFingerprint {
		t.Fatalf("key=%q", ident.Key())
	}
}

func TestAnonymousHandlesBareHost(t *testing.T) {
	ident := Anonymous("", "192.0.2.9")
	if ident.Fingerprint != "192.0.2.9" {
		t.Fatalf("fingerprint=%q", ident.Fingerprint)
	}
}
