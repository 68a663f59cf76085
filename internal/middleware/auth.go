package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/remittance/backend/internal/auth"
	"github.com/remittance/backend/internal/remittance"
	"go.uber.org/zap"
)

const CtxAddress = "address"

// AuthMiddleware resolves the Bearer token into the caller's ledger address.
func AuthMiddleware(jwtSecret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(jwtSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		addr, err := claims.Address()
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token subject"})
		}
		c.Locals(CtxAddress, addr)

		return c.Next()
	}
}

// GetAddress returns the authenticated caller, or the zero address (which
// every ledger operation rejects).
func GetAddress(c *fiber.Ctx) remittance.Address {
	addr, _ := c.Locals(CtxAddress).(remittance.Address)
	return addr
}
