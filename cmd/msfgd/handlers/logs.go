package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/msfg/msfg/pkg/api/types/errors"
	"github.com/msfg/msfg/pkg/domain"
	"github.com/msfg/msfg/pkg/provision/logbook"
)

// LogStreamHandler serves the provisioning log for a request as
// Server-Sent Events: buffered lines first, then live ones, with
// comment keep-alives while nothing happens.
func LogStreamHandler(logs *logbook.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Param("request_id")
		if err := domain.ValidateRequestID(requestID); err != nil {
			return apierr.BadRequest(err.Error(), nil)
		}

		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/event-stream")
		resp.Header().Set("Cache-Control", "no-cache")
		resp.Header().Set("Connection", "keep-alive")
		resp.Header().Set("X-Accel-Buffering", "no")
		resp.WriteHeader(http.StatusOK)
		resp.Flush()

		ctx := c.Request().Context()
		for ev := range logs.Subscribe(ctx, requestID) {
			if ev.KeepAlive {
				if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
					return nil
				}
			} else {
				if _, err := fmt.Fprintf(resp, "data: %s\n\n", ev.Line); err != nil {
					return nil
				}
			}
			resp.Flush()
		}
		return nil
	}
}
