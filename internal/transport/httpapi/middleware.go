package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const ctxUserIDKey = "user_id"

// bearerAuth проверяет заголовок Authorization: Bearer <jwt> и кладёт id пользователя в контекст.
func bearerAuth(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return errorJSON(c, http.StatusUnauthorized, "unauthorized")
			}

			userID, err := authenticator.Authenticate(token)
			if err != nil || userID <= 0 {
				return errorJSON(c, http.StatusUnauthorized, "unauthorized")
			}

			c.Set(ctxUserIDKey, userID)
			return next(c)
		}
	}
}

func userIDFromContext(c echo.Context) (int64, bool) {
	id, ok := c.Get(ctxUserIDKey).(int64)
	return id, ok && id > 0
}
