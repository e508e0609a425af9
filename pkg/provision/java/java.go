// Package java resolves which Java runtime a given Minecraft version
// needs and where that runtime lives on this host.
package java

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoRuntime: no candidate runtime is installed at all.
var ErrNoRuntime = errors.New("no java runtime installed")

// Resolver locates installed runtimes. The zero value looks under
// /opt/java with the conventional {root}/java-{major}/bin/java layout.
type Resolver struct {
	// Root holds one directory per major version, named java-{major}.
	Root string
}

// fallbackMajors is the preference order when the wanted major is not
// installed. Newer first; anything present beats nothing.
var fallbackMajors = []int{21, 17, 16, 11, 8}

const defaultRoot = "/opt/java"

// RequiredMajor maps a Minecraft version to the Java major it needs.
//
// Releases from 1.20.5 on require 21, 1.18 through 1.20.4 require 17,
// 1.17 requires 16, and everything older runs on 8.
func RequiredMajor(mcVersion string) int {
	major, minor, patch := splitVersion(mcVersion)
	if major != 1 {
		return 21
	}
	switch {
	case minor > 20 || (minor == 20 && patch >= 5):
		return 21
	case minor >= 18:
		return 17
	case minor == 17:
		return 16
	default:
		return 8
	}
}

// Resolve returns the java executable path to run installers for
// mcVersion. When the exact major is missing it walks the fallback
// order, except that pre-1.16 versions only accept Java 8.
func (r Resolver) Resolve(mcVersion string) (string, error) {
	root := r.Root
	if root == "" {
		root = defaultRoot
	}

	want := RequiredMajor(mcVersion)
	if path, ok := r.pathFor(root, want); ok {
		return path, nil
	}

	_, minor, _ := splitVersion(mcVersion)
	if minor > 0 && minor < 16 {
		// old launchers break on modern runtimes; 8 or nothing.
		return "", fmt.Errorf("%w: need java %d for minecraft %s", ErrNoRuntime, want, mcVersion)
	}

	for _, major := range fallbackMajors {
		if major == want {
			continue
		}
		if path, ok := r.pathFor(root, major); ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: need java %d for minecraft %s", ErrNoRuntime, want, mcVersion)
}

func (r Resolver) pathFor(root string, major int) (string, bool) {
	path := filepath.Join(root, fmt.Sprintf("java-%d", major), "bin", "java")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	return "", false
}

// splitVersion parses "1.20.4" into its numeric parts. Missing or
// malformed components come back as 0.
func splitVersion(v string) (major, minor, patch int) {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 3)
	atoi := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0
		}
		return n
	}
	return atoi(0), atoi(1), atoi(2)
}
