package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/msfg/msfg/pkg/admin"
	apierr "github.com/msfg/msfg/pkg/api/types/errors"
	"github.com/msfg/msfg/pkg/stats"
)

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginHandler exchanges operator credentials for a session token.
func LoginHandler(users *admin.Users, tokens *admin.Tokens) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(loginRequest)
		if err := c.Bind(req); err != nil {
			return apierr.BadRequest("can not understand the requested json", err)
		}
		if err := users.Verify(req.Name, req.Password); err != nil {
			return apierr.Unauthorized("unknown user or wrong password", nil)
		}
		token, err := tokens.Issue(req.Name)
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"token": token})
	}
}

// StatsHandler reports host resource usage.
func StatsHandler(storageRoot string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, stats.Collect(storageRoot))
	}
}

// AccessLogHandler lists the recent requests.
func AccessLogHandler(accessLog *admin.AccessLog) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, accessLog.Snapshot())
	}
}

// AccessLogCSVHandler exports the recent requests as CSV.
func AccessLogCSVHandler(accessLog *admin.AccessLog) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := c.Response()
		resp.Header().Set(echo.HeaderContentType, "text/csv")
		resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="access_log.csv"`)
		resp.WriteHeader(http.StatusOK)
		return accessLog.WriteCSV(resp)
	}
}
