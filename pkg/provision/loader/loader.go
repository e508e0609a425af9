// Package loader provisions a runnable server directory for each
// supported mod loader: Fabric, Forge, NeoForge and Quilt.
//
// Each provisioner takes the same dependency bundle and produces the
// same contract: on success the server directory contains a server.jar
// and an eula.txt; on failure a structured Error tells the user what
// to fetch by hand.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/msfg/msfg/pkg/domain"
	"github.com/msfg/msfg/pkg/provision/cache"
	"github.com/msfg/msfg/pkg/provision/download"
	"github.com/msfg/msfg/pkg/provision/installer"
	"github.com/msfg/msfg/pkg/provision/java"
	"github.com/msfg/msfg/pkg/provision/logbook"
	"github.com/msfg/msfg/pkg/provision/mcjars"
	"github.com/msfg/msfg/pkg/provision/mojang"
)

// MinInstallerSize rejects bodies that are error pages rather than
// real installer jars.
const MinInstallerSize = 1000

// Manual download pages surfaced when automated provisioning fails.
const (
	FabricInstallPage   = "https://fabricmc.net/use/installer/"
	ForgeInstallPage    = "https://files.minecraftforge.net/"
	NeoForgeInstallPage = "https://neoforged.net/"
	QuiltInstallPage    = "https://quiltmc.org/en/install/"
)

// Success phrases the installer supervisor watches for.
var successPhrases = []string{
	"The server installed successfully",
	"Installer completed with code 0",
}

// Error is a provisioning failure with enough context for the user to
// finish the install by hand.
type Error struct {
	Code         string
	Message      string
	DownloadLink string
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func failed(code, message, link string, cause error) *Error {
	return &Error{Code: code, Message: message, DownloadLink: link, Cause: cause}
}

// Deps is the shared dependency bundle for all provisioners.
type Deps struct {
	Logs       *logbook.Registry
	Downloader *download.Downloader
	Cache      *cache.Cache
	MCJars     *mcjars.Client
	Mojang     *mojang.Client
	Java       java.Resolver
	Installer  *installer.Supervisor

	// HTTP performs vendor metadata fetches (Fabric meta, NeoForge
	// version listing). Nil falls back to a shared timed client.
	HTTP *http.Client

	// MaxArtifactBytes caps a single loader artifact download.
	MaxArtifactBytes int64

	// FabricMetaURL overrides the Fabric meta endpoint in tests.
	FabricMetaURL string

	// NeoForgeMavenURL overrides the NeoForge version listing endpoint
	// in tests.
	NeoForgeMavenURL string

	// NeoForgeDownloadURL overrides the NeoForge installer download
	// root in tests.
	NeoForgeDownloadURL string

	// NeoForgeTimeout replaces the default overall installer timeout
	// for NeoForge, whose installer downloads the whole server.
	NeoForgeTimeout time.Duration
}

var defaultHTTP = &http.Client{Timeout: 30 * time.Second}

func (d Deps) httpClient() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return defaultHTTP
}

// Provisioner installs one loader's server runtime into serverDir.
type Provisioner interface {
	// Provision makes serverDir runnable for the given minecraft and
	// loader versions. Errors of type *Error carry a manual download
	// link.
	Provision(ctx context.Context, serverDir, mcVersion, loaderVersion, requestID string) error
}

// For returns the provisioner for l.
func For(l domain.Loader, deps Deps) (Provisioner, error) {
	switch l {
	case domain.Fabric:
		return &fabricProvisioner{deps}, nil
	case domain.Forge:
		return &forgeProvisioner{deps}, nil
	case domain.NeoForge:
		return &neoForgeProvisioner{deps}, nil
	case domain.Quilt:
		return &quiltProvisioner{deps}, nil
	default:
		return nil, fmt.Errorf("unsupported loader: %s", l)
	}
}

// WriteEULA drops the stub eula.txt the user must accept themselves.
func WriteEULA(serverDir string) error {
	return os.WriteFile(filepath.Join(serverDir, "eula.txt"), []byte("eula=false\n"), 0o644)
}

// checkInstallerFile rejects suspiciously small downloads. Vendor CDNs
// answer some bad version requests with 200 and a tiny error body.
func checkInstallerFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() < MinInstallerSize {
		return fmt.Errorf("downloaded installer is only %d bytes, not a valid jar", info.Size())
	}
	return nil
}

// copyFile copies src to dest, creating parent directories.
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// resolveJava locates a runtime or produces a user-facing Error.
func resolveJava(deps Deps, mcVersion, link string) (string, error) {
	path, err := deps.Java.Resolve(mcVersion)
	if err != nil {
		return "", failed("java_not_found",
			fmt.Sprintf("No Java runtime available for Minecraft %s", mcVersion), link, err)
	}
	return path, nil
}

// runInstaller executes a vendor installer under supervision with the
// shared success phrases.
func runInstaller(ctx context.Context, deps Deps, javaPath, installerPath string, args []string, serverDir, requestID string, overall time.Duration) error {
	sup := *deps.Installer
	sup.SuccessPhrases = successPhrases
	if overall > 0 {
		sup.Overall = overall
	}
	_, err := sup.Run(ctx, javaPath, installerPath, args, serverDir, requestID)
	return err
}

// cachedFetch downloads url into the cache keyed by key, or reuses an
// existing valid entry. The artifact ends up at the returned path.
//
// The cross-process lock serializes cache fills for the same key; if
// the lock is busy the entry is re-checked after the owner finishes by
// falling through to a direct download into the cache path.
func cachedFetch(ctx context.Context, deps Deps, key, ext, url, requestID string, isArchive bool) (string, error) {
	if entry, ok := deps.Cache.Lookup(key); ok {
		deps.Logs.Append(requestID, fmt.Sprintf("Using cached %s", key))
		return entry.Path, nil
	}

	dest := deps.Cache.PathFor(key, ext)
	fill := func() error {
		if entry, ok := deps.Cache.Lookup(key); ok {
			dest = entry.Path
			return nil
		}
		if err := deps.Downloader.FetchWithRetry(ctx, url, dest, requestID, deps.MaxArtifactBytes); err != nil {
			return err
		}
		if err := deps.Cache.Store(key, dest, isArchive); err != nil {
			// over the size ceiling; keep the file for this request.
			deps.Logs.Append(requestID, err.Error())
		}
		return nil
	}

	held, err := deps.Cache.WithLock(ctx, fill)
	if err != nil {
		return "", err
	}
	if !held {
		// lock owner may have filled the entry meanwhile.
		if entry, ok := deps.Cache.Lookup(key); ok {
			return entry.Path, nil
		}
		if err := fill(); err != nil {
			return "", err
		}
	}
	return dest, nil
}

var errNoServerJar = errors.New("no server jar produced by installer")
