package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultNeoForgeVersionsURL  = "https://maven.neoforged.net/api/maven/versions/releases/net/neoforged/neoforge"
	defaultNeoForgeDownloadRoot = "https://maven.neoforged.net/releases/net/neoforged/neoforge"
)

// neoForgeProvisioner resolves the wanted version against the NeoForge
// maven listing and runs the official installer, which downloads the
// whole server and therefore gets the long timeout.
type neoForgeProvisioner struct {
	deps Deps
}

func (p *neoForgeProvisioner) Provision(ctx context.Context, serverDir, mcVersion, loaderVersion, requestID string) error {
	deps := p.deps
	deps.Logs.Append(requestID, fmt.Sprintf("Setting up NeoForge %s for Minecraft %s", loaderVersion, mcVersion))

	version, err := p.resolveVersion(ctx, loaderVersion)
	if err != nil {
		return failed("neoforge_version_not_found",
			fmt.Sprintf("No NeoForge release matches Minecraft %s loader %q", mcVersion, loaderVersion),
			NeoForgeInstallPage, err)
	}
	deps.Logs.Append(requestID, fmt.Sprintf("Resolved NeoForge version %s", version))

	url := fmt.Sprintf("%s/%s/neoforge-%s-installer.jar", p.downloadRoot(), version, version)
	installerPath, err := cachedFetch(ctx, deps, "neoforge-installer-"+version, "jar", url, requestID, false)
	if err != nil {
		return failed("neoforge_download_failed",
			"Could not download the NeoForge installer", NeoForgeInstallPage, err)
	}
	if err := checkInstallerFile(installerPath); err != nil {
		return failed("neoforge_download_failed",
			"NeoForge installer download is not a valid jar", NeoForgeInstallPage, err)
	}

	javaPath, err := resolveJava(deps, mcVersion, NeoForgeInstallPage)
	if err != nil {
		return err
	}

	args := []string{"--server.jar", "--installServer"}
	if err := runInstaller(ctx, deps, javaPath, installerPath, args, serverDir, requestID, deps.NeoForgeTimeout); err != nil {
		return failed("neoforge_install_failed",
			"The NeoForge installer did not complete", NeoForgeInstallPage, err)
	}

	if err := NormalizeServerJar(serverDir, "neoforge"); err != nil {
		return failed("neoforge_install_failed",
			"NeoForge installer finished but produced no server jar", NeoForgeInstallPage, err)
	}
	deps.Logs.Append(requestID, "NeoForge server installed")
	return nil
}

func (p *neoForgeProvisioner) downloadRoot() string {
	if p.deps.NeoForgeDownloadURL != "" {
		return p.deps.NeoForgeDownloadURL
	}
	return defaultNeoForgeDownloadRoot
}

func (p *neoForgeProvisioner) versionsURL() string {
	if p.deps.NeoForgeMavenURL != "" {
		return p.deps.NeoForgeMavenURL
	}
	return defaultNeoForgeVersionsURL
}

// resolveVersion picks the release to install: the highest version in
// the listing whose suffix matches loaderVersion, so composite ids
// like "21.1.77" are found for a partial "1.77" too. The empty loader
// version matches everything and resolves to the newest release.
func (p *neoForgeProvisioner) resolveVersion(ctx context.Context, loaderVersion string) (string, error) {
	versions, err := p.listVersions(ctx)
	if err != nil {
		return "", err
	}

	var best string
	for _, v := range versions {
		if !strings.HasSuffix(v, loaderVersion) {
			continue
		}
		if best == "" || versionLess(best, v) {
			best = v
		}
	}
	if best == "" {
		return "", fmt.Errorf("no release matching %q", loaderVersion)
	}
	return best, nil
}

// listVersions queries the maven versions API, which answers
// {"isSnapshot": false, "versions": ["20.4.9", ...]}.
func (p *neoForgeProvisioner) listVersions(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.versionsURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.deps.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("neoforge maven: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}
	var listing struct {
		Versions []string `json:"versions"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, err
	}
	return listing.Versions, nil
}

// versionLess compares dotted versions numerically component by
// component, e.g. 20.4.9 < 20.4.80. Non-numeric components (beta
// suffixes) compare as strings and sort below numeric ones.
func versionLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				return an < bn
			}
		case aerr == nil:
			return false
		case berr == nil:
			return true
		default:
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
		}
	}
	return len(as) < len(bs)
}
