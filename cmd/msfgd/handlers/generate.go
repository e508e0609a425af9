package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	apierr "github.com/msfg/msfg/pkg/api/types/errors"
	"github.com/msfg/msfg/pkg/domain"
	"github.com/msfg/msfg/pkg/provision/logbook"
	"github.com/msfg/msfg/pkg/provision/pipeline"
)

// GenerateHandler accepts a modpack upload and runs provisioning for
// the caller-chosen request id, answering once the archive is ready.
// Progress is followed concurrently on the log stream.
func GenerateHandler(pipe *pipeline.Pipeline, logs *logbook.Registry, maxUploadBytes int64) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.QueryParam("request_id")
		if err := domain.ValidateRequestID(requestID); err != nil {
			return apierr.BadRequest(err.Error(), nil)
		}

		if cl := c.Request().ContentLength; cl > 0 && cl > maxUploadBytes {
			return apierr.NewErrorMessage(
				http.StatusRequestEntityTooLarge, "uploaded file is too large",
			)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return apierr.BadRequest("no modpack file in the request", err)
		}
		if fh.Size > maxUploadBytes {
			return apierr.NewErrorMessage(
				http.StatusRequestEntityTooLarge, "uploaded file is too large",
			)
		}

		src, err := fh.Open()
		if err != nil {
			return apierr.InternalServerError(err)
		}
		defer src.Close()

		spool, err := os.CreateTemp("", "msfg-upload-*.mrpack")
		if err != nil {
			return apierr.InternalServerError(err)
		}
		if _, err := io.Copy(spool, io.LimitReader(src, maxUploadBytes+1)); err != nil {
			spool.Close()
			os.Remove(spool.Name())
			return apierr.InternalServerError(err)
		}
		if info, err := spool.Stat(); err == nil && info.Size() > maxUploadBytes {
			spool.Close()
			os.Remove(spool.Name())
			return apierr.NewErrorMessage(
				http.StatusRequestEntityTooLarge, "uploaded file is too large",
			)
		}
		spool.Close()

		logs.Append(requestID, "Upload received: "+fh.Filename)
		defer os.Remove(spool.Name())

		// the run is bounded by its own timeouts, not by the upload's
		// context: a closed browser must not abort a half-built server.
		result, err := pipe.Generate(context.Background(), spool.Name(), fh.Filename, requestID)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, pipeline.ErrInvalidModpack) {
				code = http.StatusBadRequest
			}
			return apierr.NewErrorMessage(
				code, "server generation failed",
				apierr.WithMessage(result.ErrorMessage),
				apierr.WithDownloadLink(result.DownloadLink),
			)
		}

		return c.JSON(http.StatusOK, map[string]string{
			"status":       "success",
			"request_id":   requestID,
			"download_url": "/download/" + requestID,
		})
	}
}
