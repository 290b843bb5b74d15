package middlewares

import (
	t_token "civic_message_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//PrincipalID authenticated user id, set by AuthMiddleware into c.Locals
	PrincipalID = "PrincipalID"
)

// PrincipalResolver maps a raw auth credential onto a user id. The messaging
// core never derives identity itself; every entry point goes through one
// injected resolver.
type PrincipalResolver interface {
	Resolve(rawToken string) (string, error)
}

type jwtResolver struct{}

// NewJWTResolver resolver over the platform's signed JWT
func NewJWTResolver() PrincipalResolver {
	return jwtResolver{}
}

func (jwtResolver) Resolve(rawToken string) (string, error) {
	claims, err := t_token.ParseJWT(rawToken)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// AuthMiddleware validates the credential from query or cookie and stores
// the resolved principal for downstream handlers.
func AuthMiddleware(resolver PrincipalResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query(QueryToken)

		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		userID, err := resolver.Resolve(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(PrincipalID, userID)
		return c.Next()
	}
}
