package loader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/msfg/msfg/pkg/provision/mcjars"
	"github.com/msfg/msfg/pkg/utils/archive"
)

// forgeProvisioner installs Forge from pre-built mcjars artifacts, so
// no installer process is needed.
type forgeProvisioner struct {
	deps Deps
}

func (p *forgeProvisioner) Provision(ctx context.Context, serverDir, mcVersion, loaderVersion, requestID string) error {
	deps := p.deps
	deps.Logs.Append(requestID, fmt.Sprintf("Setting up Forge %s for Minecraft %s", loaderVersion, mcVersion))

	art, err := deps.MCJars.ResolveBuild(ctx, mcjars.ProjectForge, mcVersion, loaderVersion, false)
	if err != nil {
		return failed("forge_build_not_found",
			fmt.Sprintf("No Forge build available for Minecraft %s loader %s", mcVersion, loaderVersion),
			ForgeInstallPage, err)
	}

	if err := installMCJarsArtifact(ctx, deps, art, "forge", serverDir, mcVersion, loaderVersion, requestID, ForgeInstallPage); err != nil {
		return err
	}
	deps.Logs.Append(requestID, "Forge server installed")
	return nil
}

// installMCJarsArtifact lands a resolved mcjars artifact in serverDir:
// archives are extracted in place, plain jars become server.jar.
func installMCJarsArtifact(ctx context.Context, deps Deps, art mcjars.Artifact, loaderName, serverDir, mcVersion, loaderVersion, requestID, installPage string) error {
	key := fmt.Sprintf("%s-%s-%s", loaderName, mcVersion, loaderVersion)
	code := loaderName + "_download_failed"

	if art.IsArchive {
		path, err := cachedFetch(ctx, deps, key, "zip", art.URL, requestID, true)
		if err != nil {
			return failed(code, "Could not download the server bundle", installPage, err)
		}
		deps.Logs.Append(requestID, "Extracting server bundle")
		if err := archive.Unzip(path, serverDir); err != nil {
			return failed(code, "Server bundle could not be extracted", installPage, err)
		}
		if err := promoteNestedServerFiles(serverDir); err != nil {
			return failed(code, "Server bundle could not be arranged", installPage, err)
		}
		if err := NormalizeServerJar(serverDir, loaderName); err != nil {
			return failed(code, "Server bundle contains no launchable jar", installPage, err)
		}
		return nil
	}

	path, err := cachedFetch(ctx, deps, key, "jar", art.URL, requestID, false)
	if err != nil {
		return failed(code, "Could not download the server jar", installPage, err)
	}
	if err := checkInstallerFile(path); err != nil {
		return failed(code, "Server jar download is not a valid jar", installPage, err)
	}
	if err := copyFile(path, filepath.Join(serverDir, "server.jar")); err != nil {
		return failed(code, "Could not place the server jar", installPage, err)
	}
	return nil
}
