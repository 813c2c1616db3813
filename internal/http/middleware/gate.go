package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"btcarts/internal/config"
)

// AdminRealm is announced in the Basic challenge.
const AdminRealm = "admin"

// GuardedPrefixes are the path prefixes served only to the admin credential.
var GuardedPrefixes = []string{"/admin", "/api/admin", "/api/grants/files"}

// IsGuardedPath reports whether path falls under a guarded prefix. Matching is
// per segment, so /admin and /admin/x are guarded but /administrator is not.
// Routing is case-insensitive, so the match is too.
func IsGuardedPath(path string) bool {
	p := strings.ToLower(path)
	for _, prefix := range GuardedPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// AdminGate guards GuardedPrefixes with HTTP Basic auth against a single
// shared credential captured at construction. With no credential configured
// the guarded surface answers 404 to everyone.
func AdminGate(cfg config.AdminConfig) fiber.Handler {
	if !cfg.Enabled() {
		return func(c *fiber.Ctx) error {
			if !IsGuardedPath(c.Path()) {
				return c.Next()
			}
			return gateError(c, fiber.StatusNotFound, "NOT_FOUND", "resource not found")
		}
	}

	wantUser := sha256.Sum256([]byte(cfg.Username))
	wantPass := sha256.Sum256([]byte(cfg.Password))

	return basicauth.New(basicauth.Config{
		Next: func(c *fiber.Ctx) bool {
			return !IsGuardedPath(c.Path())
		},
		Realm: AdminRealm,
		Authorizer: func(user, pass string) bool {
			gotUser := sha256.Sum256([]byte(user))
			gotPass := sha256.Sum256([]byte(pass))
			// Both comparisons always run.
			userOK := subtle.ConstantTimeCompare(gotUser[:], wantUser[:])
			passOK := subtle.ConstantTimeCompare(gotPass[:], wantPass[:])
			return userOK&passOK == 1
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="`+AdminRealm+`"`)
			return gateError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		},
	})
}

func gateError(c *fiber.Ctx, status int, code, message string) error {
	rid, _ := c.Locals(RequestIDLocalKey).(string)
	return c.Status(status).JSON(fiber.Map{
		"request_id": rid,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}
