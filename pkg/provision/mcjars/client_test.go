package mcjars_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/msfg/msfg/pkg/provision/mcjars"
)

func fakeAPI(t *testing.T, routes map[string]string) *mcjars.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client := mcjars.NewClient()
	client.BaseURL = server.URL
	return client
}

func TestClient_ResolveBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("zip url wins over jar url", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/FORGE/1.20.1": `{
				"success": true,
				"builds": [
					{"id": 1, "projectVersionId": "1.20.1-47.2.0",
					 "zipUrl": "https://cdn/forge.zip", "jarUrl": "https://cdn/forge.jar"}
				]
			}`,
		})

		art, err := client.ResolveBuild(ctx, mcjars.ProjectForge, "1.20.1", "47.2.0", false)
		if err != nil {
			t.Fatal(err)
		}
		if art.URL != "https://cdn/forge.zip" || !art.IsArchive {
			t.Errorf("unexpected artifact: %+v", art)
		}
	})

	t.Run("loader version matched by suffix", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/FORGE/1.20.1": `{
				"success": true,
				"builds": [
					{"id": 1, "projectVersionId": "1.20.1-40.0.0", "jarUrl": "https://cdn/old.jar"},
					{"id": 2, "projectVersionId": "1.20.1-47.2.0", "jarUrl": "https://cdn/wanted.jar"}
				]
			}`,
		})

		art, err := client.ResolveBuild(ctx, mcjars.ProjectForge, "1.20.1", "47.2.0", false)
		if err != nil {
			t.Fatal(err)
		}
		if art.URL != "https://cdn/wanted.jar" || art.IsArchive {
			t.Errorf("unexpected artifact: %+v", art)
		}
	})

	t.Run("empty loader version takes the latest build", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/QUILT/1.20.1/latest": `{
				"success": true,
				"build": {"id": 9, "projectVersionId": "0.26.0", "zipUrl": "https://cdn/quilt.zip"}
			}`,
		})

		art, err := client.ResolveBuild(ctx, mcjars.ProjectQuilt, "1.20.1", "", false)
		if err != nil {
			t.Fatal(err)
		}
		if art.URL != "https://cdn/quilt.zip" {
			t.Errorf("unexpected artifact: %+v", art)
		}
	})

	t.Run("fabric builds are filtered from quilt results", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/QUILT/1.20.1": `{
				"success": true,
				"builds": [
					{"id": 1, "projectVersionId": "fabric-0.26.0", "zipUrl": "https://cdn/fabric.zip"},
					{"id": 2, "projectVersionId": "0.26.0", "zipUrl": "https://cdn/quilt.zip"}
				]
			}`,
		})

		art, err := client.ResolveBuild(ctx, mcjars.ProjectQuilt, "1.20.1", "0.26.0", true)
		if err != nil {
			t.Fatal(err)
		}
		if art.URL != "https://cdn/quilt.zip" {
			t.Errorf("fabric build leaked through: %+v", art)
		}
	})

	t.Run("installation steps are scanned by priority", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/FORGE/1.20.1": `{
				"success": true,
				"builds": [
					{"id": 1, "projectVersionId": "1.20.1-47.2.0",
					 "installation": [
						[{"type": "download", "file": "libraries/dep.jar", "url": "https://cdn/dep.jar"}],
						[{"type": "download", "file": "forge-server.jar", "url": "https://cdn/server.jar"}]
					 ]}
				]
			}`,
		})

		art, err := client.ResolveBuild(ctx, mcjars.ProjectForge, "1.20.1", "47.2.0", false)
		if err != nil {
			t.Fatal(err)
		}
		if art.URL != "https://cdn/server.jar" {
			t.Errorf("want server jar step, but got %+v", art)
		}
	})

	t.Run("thin listing falls back to build detail", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/FORGE/1.20.1": `{
				"success": true,
				"builds": [{"id": 77, "projectVersionId": "1.20.1-47.2.0"}]
			}`,
			"/v1/build/77": `{
				"success": true,
				"build": {"id": 77, "projectVersionId": "1.20.1-47.2.0", "jarUrl": "https://cdn/detail.jar"}
			}`,
		})

		art, err := client.ResolveBuild(ctx, mcjars.ProjectForge, "1.20.1", "47.2.0", false)
		if err != nil {
			t.Fatal(err)
		}
		if art.URL != "https://cdn/detail.jar" {
			t.Errorf("unexpected artifact: %+v", art)
		}
	})

	t.Run("success false is a bad response", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/FORGE/1.20.1": `{"success": false}`,
		})

		if _, err := client.ResolveBuild(ctx, mcjars.ProjectForge, "1.20.1", "47.2.0", false); !errors.Is(err, mcjars.ErrBadResponse) {
			t.Errorf("want ErrBadResponse, but got %v", err)
		}
	})

	t.Run("no matching build", func(t *testing.T) {
		client := fakeAPI(t, map[string]string{
			"/v1/builds/FORGE/1.20.1": `{
				"success": true,
				"builds": [{"id": 1, "projectVersionId": "1.20.1-40.0.0", "jarUrl": "https://cdn/x.jar"}]
			}`,
		})

		if _, err := client.ResolveBuild(ctx, mcjars.ProjectForge, "1.20.1", "47.2.0", false); !errors.Is(err, mcjars.ErrNoBuild) {
			t.Errorf("want ErrNoBuild, but got %v", err)
		}
	})
}
