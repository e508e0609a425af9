package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	apierr "github.com/msfg/msfg/pkg/api/types/errors"
	"github.com/msfg/msfg/pkg/domain"
	"github.com/msfg/msfg/pkg/provision/pipeline"
)

// DownloadHandler serves the packaged server archive. The first
// successful download starts the deletion countdown for the request's
// artifacts.
func DownloadHandler(pipe *pipeline.Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Param("request_id")
		if err := domain.ValidateRequestID(requestID); err != nil {
			return apierr.BadRequest(err.Error(), nil)
		}

		result, ok := pipe.Lookup(requestID)
		if !ok {
			return apierr.NotFound("unknown or expired request")
		}

		switch result.Status {
		case pipeline.StatusRunning:
			return apierr.NewErrorMessage(
				http.StatusConflict, "server generation still in progress",
			)
		case pipeline.StatusFailed:
			return apierr.NewErrorMessage(
				http.StatusNotFound, "server generation failed",
				apierr.WithMessage(result.ErrorMessage),
				apierr.WithDownloadLink(result.DownloadLink),
			)
		}

		if _, err := os.Stat(result.ZipPath); err != nil {
			return apierr.NotFound("archive already cleaned up")
		}

		pipe.MarkDownloaded(requestID)
		return c.Attachment(result.ZipPath, filepath.Base(result.ZipPath))
	}
}
