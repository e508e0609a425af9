package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultFabricMetaURL = "https://meta.fabricmc.net/v2/versions/installer"

// fabricProvisioner runs the official Fabric installer, which fetches
// the vanilla server itself via -downloadMinecraft.
type fabricProvisioner struct {
	deps Deps
}

type fabricInstaller struct {
	URL     string `json:"url"`
	Version string `json:"version"`
	Stable  bool   `json:"stable"`
}

func (p *fabricProvisioner) Provision(ctx context.Context, serverDir, mcVersion, loaderVersion, requestID string) error {
	deps := p.deps
	deps.Logs.Append(requestID, fmt.Sprintf("Setting up Fabric %s for Minecraft %s", loaderVersion, mcVersion))

	inst, err := p.latestInstaller(ctx)
	if err != nil {
		return failed("fabric_meta_unavailable",
			"Could not determine the latest Fabric installer", FabricInstallPage, err)
	}

	key := "fabric-installer-" + inst.Version
	installerPath, err := cachedFetch(ctx, deps, key, "jar", inst.URL, requestID, false)
	if err != nil {
		return failed("fabric_download_failed",
			"Could not download the Fabric installer", FabricInstallPage, err)
	}
	if err := checkInstallerFile(installerPath); err != nil {
		return failed("fabric_download_failed",
			"Fabric installer download is not a valid jar", FabricInstallPage, err)
	}

	javaPath, err := resolveJava(deps, mcVersion, FabricInstallPage)
	if err != nil {
		return err
	}

	args := []string{
		"server",
		"-downloadMinecraft",
		"-mcversion", mcVersion,
		"-loader", loaderVersion,
		"-dir", serverDir,
	}
	if err := runInstaller(ctx, deps, javaPath, installerPath, args, serverDir, requestID, 0); err != nil {
		return failed("fabric_install_failed",
			"The Fabric installer did not complete", FabricInstallPage, err)
	}

	if err := NormalizeServerJar(serverDir, "fabric"); err != nil {
		return failed("fabric_install_failed",
			"Fabric installer finished but produced no server jar", FabricInstallPage, err)
	}
	deps.Logs.Append(requestID, "Fabric server installed")
	return nil
}

// latestInstaller picks the newest stable entry of the Fabric meta
// installer listing, falling back to the first entry.
func (p *fabricProvisioner) latestInstaller(ctx context.Context) (fabricInstaller, error) {
	url := p.deps.FabricMetaURL
	if url == "" {
		url = defaultFabricMetaURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fabricInstaller{}, err
	}
	resp, err := p.deps.httpClient().Do(req)
	if err != nil {
		return fabricInstaller{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fabricInstaller{}, fmt.Errorf("fabric meta: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return fabricInstaller{}, err
	}
	var installers []fabricInstaller
	if err := json.Unmarshal(body, &installers); err != nil {
		return fabricInstaller{}, err
	}
	if len(installers) == 0 {
		return fabricInstaller{}, fmt.Errorf("fabric meta: empty installer list")
	}
	for _, inst := range installers {
		if inst.Stable {
			return inst, nil
		}
	}
	return installers[0], nil
}
