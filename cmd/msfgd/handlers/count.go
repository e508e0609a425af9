package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/msfg/msfg/pkg/provision/counter"
)

// CountHandler reports the lifetime number of generated servers.
func CountHandler(count *counter.Counter) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int64{
			"count": count.Value(),
		})
	}
}
