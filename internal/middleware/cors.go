package middleware

import (
	"github.com/labstack/echo/v4"
)

// CORS returns an Echo middleware that guarantees every response carries
// Access-Control-Allow-Origin, including error responses written by Echo
// itself. Values already set by a handler are left alone.
func CORS(allowOrigin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Before(func() {
				if res.Header().Get(echo.HeaderAccessControlAllowOrigin) == "" {
					res.Header().Set(echo.HeaderAccessControlAllowOrigin, allowOrigin)
				}
			})
			return next(c)
		}
	}
}
