package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth validates an HS256 bearer token and stores its subject and role
// claims under CtxUserID and CtxRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	key := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, key)
			if err != nil || !tok.Valid {
				return unauthorized(c, "invalid token")
			}
			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				return unauthorized(c, "invalid claims")
			}
			role, _ := claims["role"].(string)

			c.Set(CtxUserID, sub)
			c.Set(CtxRole, role)
			return next(c)
		}
	}
}

// UserID returns the authenticated subject, or "" outside JWTAuth.
func UserID(c echo.Context) string {
	s, _ := c.Get(CtxUserID).(string)
	return s
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": msg})
}
