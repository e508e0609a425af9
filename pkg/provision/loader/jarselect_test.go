package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msfg/msfg/pkg/provision/loader"
)

func makeJars(t *testing.T, names map[string]int) string {
	t.Helper()
	dir := t.TempDir()
	for name, size := range names {
		if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestSelectServerJar(t *testing.T) {
	type When struct {
		jars       map[string]int
		loaderName string
	}
	type Then struct {
		want string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			dir := makeJars(t, when.jars)
			got := loader.SelectServerJar(dir, when.loaderName)
			if got != then.want {
				t.Errorf("want %q, but got %q", then.want, got)
			}
		}
	}

	t.Run("server name wins", theory(
		When{
			jars: map[string]int{
				"forge-47.2.0-server.jar": 10,
				"forge-47.2.0.jar":        1000,
			},
			loaderName: "forge",
		},
		Then{want: "forge-47.2.0-server.jar"},
	))

	t.Run("launch wrappers are excluded", theory(
		When{
			jars: map[string]int{
				"fabric-server-launch.jar": 10,
				"fabric-loader-0.15.jar":   100,
			},
			loaderName: "fabric",
		},
		Then{want: "fabric-loader-0.15.jar"},
	))

	t.Run("installer and client jars are excluded", theory(
		When{
			jars: map[string]int{
				"neoforge-installer.jar": 5000,
				"minecraft-client.jar":   5000,
				"minecraft_server.jar":   100,
			},
			loaderName: "neoforge",
		},
		Then{want: "minecraft_server.jar"},
	))

	t.Run("loader name beats minecraft prefix", theory(
		When{
			jars: map[string]int{
				"quilt-loader-0.26.jar": 10,
				"minecraft-1.20.1.jar":  1000,
			},
			loaderName: "quilt",
		},
		Then{want: "quilt-loader-0.26.jar"},
	))

	t.Run("listing order breaks ties when nothing hints", theory(
		When{
			jars: map[string]int{
				"a.jar": 10,
				"b.jar": 1000,
				"c.jar": 100,
			},
			loaderName: "forge",
		},
		Then{want: "a.jar"},
	))

	t.Run("wrapper-only dir falls back to the full list", theory(
		When{
			jars: map[string]int{
				"quilt-server-launch.jar": 500,
			},
			loaderName: "quilt",
		},
		Then{want: "quilt-server-launch.jar"},
	))

	t.Run("no jars at all", theory(
		When{
			jars: map[string]int{
				"readme.txt": 10,
			},
			loaderName: "forge",
		},
		Then{want: ""},
	))
}

func TestNormalizeServerJar(t *testing.T) {
	t.Run("existing server.jar is kept", func(t *testing.T) {
		dir := makeJars(t, map[string]int{"server.jar": 100, "other.jar": 1000})
		if err := loader.NormalizeServerJar(dir, "forge"); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, "other.jar")); err != nil {
			t.Error("other jar must not be touched")
		}
	})

	t.Run("best candidate is renamed", func(t *testing.T) {
		dir := makeJars(t, map[string]int{"forge-47.2.0-universal.jar": 100})
		if err := loader.NormalizeServerJar(dir, "forge"); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(dir, "server.jar")); err != nil {
			t.Errorf("server.jar should exist: %v", err)
		}
	})

	t.Run("nothing to rename", func(t *testing.T) {
		dir := makeJars(t, map[string]int{"readme.txt": 10})
		if err := loader.NormalizeServerJar(dir, "forge"); err == nil {
			t.Error("want error, but got nil")
		}
	})
}
