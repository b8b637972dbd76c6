package api

import (
	"net/http"

	"korty/internal/apperr"

	"github.com/labstack/echo/v4"
)

// writeError renders the shared taxonomy: taxonomy errors keep their status,
// code and meta; anything else becomes an opaque 500 so internals never
// reach a client.
func writeError(c echo.Context, err error) error {
	if e := apperr.As(err); e != nil {
		return c.JSON(e.Status, e)
	}
	return c.JSON(http.StatusInternalServerError, apperr.Internal("internal error"))
}
