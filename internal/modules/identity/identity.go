// Package identity maps an inbound request to a stable actor identity:
// the authenticated user id when present, otherwise a best-effort anonymous
// fingerprint derived from the network address. The fingerprint is
// spoofable and is anti-abuse input, never authentication.
package identity

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shareloom/core/internal/middleware"
)

// SentinelFingerprint is used when no address at all is available.
const SentinelFingerprint = "unknown"

// Identity is a tagged union: exactly one of UserID/Fingerprint is set.
type Identity struct {
	UserID      string
	Fingerprint string
}

// IsAuthenticated reports whether the identity is a verified user.
func (id Identity) IsAuthenticated() bool { return id.UserID != "" }

// Key returns whichever identity field is populated. User ids and
// fingerprints live in disjoint spaces; no coalescing across them is
// attempted (the same physical visitor may count twice, by design of the
// public counters).
func (id Identity) Key() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.Fingerprint
}

// Resolve derives the actor identity for the current request. It always
// returns a value.
func Resolve(c *gin.Context) Identity {
	if uid := middleware.CurrentUserID(c); uid != "" {
		return Identity{UserID: uid}
	}
	return Identity{Fingerprint: fingerprint(c.GetHeader("X-Forwarded-For"), c.Request.RemoteAddr)}
}

// Anonymous builds an anonymous identity from raw address material (used
// outside a gin context, e.g. by workers replaying events).
func Anonymous(forwardedFor, remoteAddr string) Identity {
	return Identity{Fingerprint: fingerprint(forwardedFor, remoteAddr)}
}

// Authenticated builds an identity for a verified user id.
func Authenticated(userID string) Identity {
	return Identity{UserID: userID}
}

func fingerprint(forwardedFor, remoteAddr string) string {
	// first hop of X-Forwarded-For wins
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}

	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
			return host
		}
		return remoteAddr
	}
	return SentinelFingerprint
}
