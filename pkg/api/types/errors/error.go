package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorMessage is the failure payload every handler renders: a
// machine-readable code, a human message and, when a vendor page is
// known, a manual-download fallback link.
type ErrorMessage struct {
	Reason       string `json:"error"`
	Message      string `json:"message,omitempty"`
	DownloadLink string `json:"download_link,omitempty"`
	Cause        error  `json:"-"`
}

func (e ErrorMessage) Error() string {
	s := e.Reason
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += " caused by: " + e.Cause.Error()
	}
	return s
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

type ErrorMessageOption func(in *ErrorMessage) *ErrorMessage

func WithMessage(message string) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if message != "" {
			in.Message = message
		}
		return in
	}
}

func WithDownloadLink(link string) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if link != "" {
			in.DownloadLink = link
		}
		return in
	}
}

func WithError(err error) ErrorMessageOption {
	return func(in *ErrorMessage) *ErrorMessage {
		if err != nil {
			in.Cause = err
			if in.Message == "" {
				in.Message = err.Error()
			}
		}
		return in
	}
}

func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason}
	for _, opt := range opts {
		msg = *opt(&msg)
	}

	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func BadRequest(reason string, err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusBadRequest, reason, WithError(err))
}

func NotFound(reason string) *echo.HTTPError {
	return NewErrorMessage(http.StatusNotFound, reason)
}

func Unauthorized(reason string, err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusUnauthorized, reason, WithError(err))
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusInternalServerError, "unexpected error", WithError(err))
}
