package domain

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

// Request ids come from the browser and end up in filesystem paths.
// Keep the accepted alphabet strict.
const MaxRequestIDLength = 100

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var (
	ErrMissingRequestID = errors.New("missing request ID")
	ErrInvalidRequestID = errors.New("invalid request ID format")
	ErrRequestIDTooLong = errors.New("request ID too long")
)

// ValidateRequestID checks that requestID is safe to use as a
// correlation key and as a path component.
func ValidateRequestID(requestID string) error {
	if requestID == "" {
		return ErrMissingRequestID
	}
	if len(requestID) > MaxRequestIDLength {
		return ErrRequestIDTooLong
	}
	if !requestIDPattern.MatchString(requestID) {
		return ErrInvalidRequestID
	}
	return nil
}

// MaxBaseNameLength caps the sanitized modpack name used in
// server directory and archive names.
const MaxBaseNameLength = 50

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeBaseName derives a filesystem-safe name from an uploaded
// filename: path components stripped, extension removed, spaces and
// disallowed characters replaced, length capped. Falls back to
// "server" when nothing survives.
func SanitizeBaseName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeNameChars.ReplaceAllString(base, "_")
	if len(base) > MaxBaseNameLength {
		base = base[:MaxBaseNameLength]
	}
	if base == "" || strings.Trim(base, "_") == "" {
		return "server"
	}
	return base
}

var unsafeJarChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeJarName makes a mod filename safe for the mods/ directory,
// preserving the .jar suffix.
func SanitizeJarName(filename string) string {
	name := unsafeJarChars.ReplaceAllString(filepath.Base(filename), "_")
	if !strings.HasSuffix(name, ".jar") {
		name += ".jar"
	}
	return name
}
