package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/msfg/msfg/pkg/provision/mcjars"
)

// quiltProvisioner installs Quilt from mcjars and supplies the vanilla
// jar the Quilt launcher expects next to itself.
type quiltProvisioner struct {
	deps Deps
}

func (p *quiltProvisioner) Provision(ctx context.Context, serverDir, mcVersion, loaderVersion, requestID string) error {
	deps := p.deps
	deps.Logs.Append(requestID, fmt.Sprintf("Setting up Quilt %s for Minecraft %s", loaderVersion, mcVersion))

	// the Quilt listing on mcjars interleaves Fabric builds.
	art, err := deps.MCJars.ResolveBuild(ctx, mcjars.ProjectQuilt, mcVersion, loaderVersion, true)
	if err != nil {
		return failed("quilt_build_not_found",
			fmt.Sprintf("No Quilt build available for Minecraft %s loader %s", mcVersion, loaderVersion),
			QuiltInstallPage, err)
	}

	if err := installMCJarsArtifact(ctx, deps, art, "quilt", serverDir, mcVersion, loaderVersion, requestID, QuiltInstallPage); err != nil {
		return err
	}

	if err := p.placeVanillaJar(ctx, serverDir, mcVersion, requestID); err != nil {
		return err
	}

	// the launcher reads this to find the vanilla jar.
	props := filepath.Join(serverDir, "quilt-server-launcher.properties")
	if err := os.WriteFile(props, []byte("serverJar=minecraft.jar\n"), 0o644); err != nil {
		return failed("quilt_install_failed", "Could not write the launcher properties", QuiltInstallPage, err)
	}

	deps.Logs.Append(requestID, "Quilt server installed")
	return nil
}

// placeVanillaJar downloads the official server jar for mcVersion into
// serverDir as minecraft.jar, via the shared cache.
func (p *quiltProvisioner) placeVanillaJar(ctx context.Context, serverDir, mcVersion, requestID string) error {
	deps := p.deps
	target := filepath.Join(serverDir, "minecraft.jar")
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	url, err := deps.Mojang.ServerJarURL(ctx, mcVersion)
	if err != nil {
		return failed("vanilla_jar_not_found",
			fmt.Sprintf("Could not resolve the vanilla server jar for Minecraft %s", mcVersion),
			QuiltInstallPage, err)
	}

	path, err := cachedFetch(ctx, deps, "vanilla-"+mcVersion, "jar", url, requestID, false)
	if err != nil {
		return failed("vanilla_jar_download_failed",
			"Could not download the vanilla server jar", QuiltInstallPage, err)
	}
	if err := copyFile(path, target); err != nil {
		return failed("quilt_install_failed", "Could not place the vanilla server jar", QuiltInstallPage, err)
	}
	deps.Logs.Append(requestID, "Vanilla server jar placed as minecraft.jar")
	return nil
}
