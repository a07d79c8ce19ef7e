package middleware

// identity.go holds helpers that read the authenticated identity stored by
// JWTAuth.  They are shared by handlers and by the rate limiter's key
// builder.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// UserID returns the authenticated user id.  ok is false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(CtxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated role claim.
func Role(c echo.Context) (string, bool) {
	r, ok := c.Get(CtxRole).(string)
	return r, ok && r != ""
}

// IsAdmin reports whether the caller holds the ADMIN role.
func IsAdmin(c echo.Context) bool {
	r, _ := Role(c)
	return r == model.RoleAdmin
}

// currentUserID renders the caller for rate-limit keys, "anon" when not
// authenticated.
func currentUserID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
