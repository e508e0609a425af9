package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVersionLess(t *testing.T) {
	type When struct {
		a, b string
	}
	type Then struct {
		less bool
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			if got := versionLess(when.a, when.b); got != then.less {
				t.Errorf("versionLess(%q, %q): want %v, but got %v", when.a, when.b, then.less, got)
			}
		}
	}

	t.Run("numeric not lexicographic", theory(When{"20.4.9", "20.4.80"}, Then{true}))
	t.Run("equal is not less", theory(When{"20.4.80", "20.4.80"}, Then{false}))
	t.Run("major dominates", theory(When{"20.6.1", "21.0.0"}, Then{true}))
	t.Run("shorter prefix is less", theory(When{"20.4", "20.4.1"}, Then{true}))
	t.Run("beta suffix sorts below release", theory(When{"20.4.beta", "20.4.1"}, Then{true}))
}

func TestNeoForge_resolveVersion(t *testing.T) {
	listing := `{
		"isSnapshot": false,
		"versions": ["20.4.9", "20.4.237", "20.4.80", "20.6.119", "21.0.143", "21.1.77"]
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing)
	}))
	defer server.Close()

	p := &neoForgeProvisioner{deps: Deps{NeoForgeMavenURL: server.URL}}
	ctx := context.Background()

	type When struct {
		loaderVersion string
	}
	type Then struct {
		want    string
		wantErr bool
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			got, err := p.resolveVersion(ctx, when.loaderVersion)
			if then.wantErr {
				if err == nil {
					t.Errorf("want error, but got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != then.want {
				t.Errorf("want %q, but got %q", then.want, got)
			}
		}
	}

	t.Run("exact version wins", theory(
		When{loaderVersion: "20.4.80"},
		Then{want: "20.4.80"},
	))
	t.Run("partial version matches by suffix", theory(
		When{loaderVersion: "1.77"},
		Then{want: "21.1.77"},
	))
	t.Run("suffix shared by several picks the highest", theory(
		When{loaderVersion: "9"},
		Then{want: "20.6.119"},
	))
	t.Run("empty version resolves to the newest release", theory(
		When{loaderVersion: ""},
		Then{want: "21.1.77"},
	))
	t.Run("no matching release", theory(
		When{loaderVersion: "47.2.0"},
		Then{wantErr: true},
	))
}
