package java_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/msfg/msfg/pkg/provision/java"
)

func installFakeRuntimes(t *testing.T, majors ...int) string {
	t.Helper()
	root := t.TempDir()
	for _, major := range majors {
		bin := filepath.Join(root, fmt.Sprintf("java-%d", major), "bin")
		if err := os.MkdirAll(bin, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(bin, "java"), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestRequiredMajor(t *testing.T) {
	type When struct {
		mcVersion string
	}
	type Then struct {
		major int
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			if got := java.RequiredMajor(when.mcVersion); got != then.major {
				t.Errorf("want %d, but got %d", then.major, got)
			}
		}
	}

	t.Run("1.20.5 needs 21", theory(When{"1.20.5"}, Then{21}))
	t.Run("1.21 needs 21", theory(When{"1.21"}, Then{21}))
	t.Run("1.20.4 needs 17", theory(When{"1.20.4"}, Then{17}))
	t.Run("1.18 needs 17", theory(When{"1.18"}, Then{17}))
	t.Run("1.17.1 needs 16", theory(When{"1.17.1"}, Then{16}))
	t.Run("1.16.5 needs 8", theory(When{"1.16.5"}, Then{8}))
	t.Run("1.12.2 needs 8", theory(When{"1.12.2"}, Then{8}))
}

func TestResolver_Resolve(t *testing.T) {
	t.Run("exact runtime is preferred", func(t *testing.T) {
		root := installFakeRuntimes(t, 17, 21)
		r := java.Resolver{Root: root}

		got, err := r.Resolve("1.20.1")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(root, "java-17", "bin", "java"); got != want {
			t.Errorf("want %q, but got %q", want, got)
		}
	})

	t.Run("falls back when exact major is missing", func(t *testing.T) {
		root := installFakeRuntimes(t, 21)
		r := java.Resolver{Root: root}

		got, err := r.Resolve("1.20.1")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(root, "java-21", "bin", "java"); got != want {
			t.Errorf("want %q, but got %q", want, got)
		}
	})

	t.Run("old versions refuse modern fallbacks", func(t *testing.T) {
		root := installFakeRuntimes(t, 21)
		r := java.Resolver{Root: root}

		if _, err := r.Resolve("1.12.2"); !errors.Is(err, java.ErrNoRuntime) {
			t.Errorf("want ErrNoRuntime, but got %v", err)
		}
	})

	t.Run("nothing installed", func(t *testing.T) {
		r := java.Resolver{Root: t.TempDir()}
		if _, err := r.Resolve("1.20.1"); !errors.Is(err, java.ErrNoRuntime) {
			t.Errorf("want ErrNoRuntime, but got %v", err)
		}
	})
}
