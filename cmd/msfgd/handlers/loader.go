package handlers

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	apierr "github.com/msfg/msfg/pkg/api/types/errors"
	"github.com/msfg/msfg/pkg/domain"
	"github.com/msfg/msfg/pkg/utils/archive"
)

// CheckLoaderHandler inspects an uploaded modpack without provisioning
// anything: it answers with the detected loader and versions.
func CheckLoaderHandler(maxUploadBytes int64) echo.HandlerFunc {
	return func(c echo.Context) error {
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

		extractDir, err := os.MkdirTemp("", "msfg-inspect-")
		if err != nil {
			return apierr.InternalServerError(err)
		}
		defer os.RemoveAll(extractDir)

		if err := archive.UnzipReader(src, fh.Size, extractDir); err != nil {
			return apierr.BadRequest("uploaded file is not a valid modpack archive", err)
		}

		index, err := domain.ReadIndex(extractDir)
		if err != nil {
			return apierr.BadRequest("modpack has no readable index", err)
		}
		detected, loaderVersion, err := domain.DetectLoader(index.Dependencies)
		if err != nil {
			return apierr.BadRequest("modpack does not declare a supported mod loader", err)
		}

		return c.JSON(http.StatusOK, map[string]any{
			"loader":         detected.String(),
			"loader_version": loaderVersion,
			"minecraft":      index.MinecraftVersion(),
			"mod_count":      len(index.Files),
		})
	}
}
