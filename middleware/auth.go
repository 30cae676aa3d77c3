// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Staff roles allowed on /s/admin routes.
const (
	RoleTeacher   = "teacher"
	RolePrincipal = "principal"
)

// UserContextMiddleware extracts user identity and roles set by the gateway.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through gateway with auth context",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", ParseRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}

// ParseRoles splits a comma-separated role header, dropping blanks.
func ParseRoles(header string) []string {
	var roles []string
	for _, r := range strings.Split(header, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// RequireRole lets the request through when the user holds any of roles.
// It must run after UserContextMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		have, _ := c.Locals("user_roles").([]string)
		for _, h := range have {
			for _, want := range roles {
				if h == want {
					return c.Next()
				}
			}
		}
		log.Printf("🚫 [USER_CTX] %v lacks role %v for %s", c.Locals("user_id"), roles, c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}
