// Package pipeline drives a full provisioning run: modpack extraction,
// loader detection, parallel mod downloads, vendor installation and
// final packaging, all correlated by the caller-supplied request id.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/msfg/msfg/pkg/domain"
	"github.com/msfg/msfg/pkg/provision/counter"
	"github.com/msfg/msfg/pkg/provision/download"
	"github.com/msfg/msfg/pkg/provision/loader"
	"github.com/msfg/msfg/pkg/provision/logbook"
	"github.com/msfg/msfg/pkg/utils/archive"
)

// Status of one provisioning request.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// dirSuffix marks directories and archives this service owns, so
// cleanup never touches anything else under the storage root.
const dirSuffix = "-MSFG"

// abandonTimeout removes artifacts that were generated but never
// downloaded.
const abandonTimeout = 3 * time.Hour

// minArchiveBytes rejects result archives so small they cannot be a
// real server.
const minArchiveBytes = 200

// ErrInvalidModpack marks failures caused by the upload itself rather
// than by provisioning. The web layer renders these as client errors.
var ErrInvalidModpack = errors.New("invalid modpack")

// Result is the externally visible state of a request.
type Result struct {
	Status       Status
	ZipPath      string
	Loader       domain.Loader
	MCVersion    string
	ErrorMessage string
	DownloadLink string
}

type request struct {
	mu           sync.Mutex
	result       Result
	serverDir    string
	cleanupTimer *time.Timer
}

// Pipeline owns the request registry and all provisioning machinery.
type Pipeline struct {
	Logs       *logbook.Registry
	Downloader *download.Downloader
	Counter    *counter.Counter
	LoaderDeps loader.Deps

	// ServerRoot holds per-request server dirs and result archives.
	ServerRoot string

	// MaxFileBytes caps each individual mod download.
	MaxFileBytes int64

	// Workers / CopyWorkers bound the download and override fan-outs.
	Workers     int
	CopyWorkers int

	// CleanupDelay is the grace between first download and deletion.
	CleanupDelay time.Duration

	// ZipLimits caps the result archive.
	ZipLimits archive.Limits

	mu       sync.Mutex
	requests map[string]*request
}

func (p *Pipeline) register(requestID string) *request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requests == nil {
		p.requests = map[string]*request{}
	}
	r, ok := p.requests[requestID]
	if !ok {
		r = &request{result: Result{Status: StatusRunning}}
		p.requests[requestID] = r
	}
	return r
}

// Lookup returns the current result for requestID.
func (p *Pipeline) Lookup(requestID string) (Result, bool) {
	p.mu.Lock()
	r, ok := p.requests[requestID]
	p.mu.Unlock()
	if !ok {
		return Result{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, true
}

// Generate runs the whole provisioning flow for an uploaded modpack
// already sitting at uploadPath. It blocks until the run ends; callers
// wanting async behavior run it in a goroutine and follow the logs.
func (p *Pipeline) Generate(ctx context.Context, uploadPath, uploadName, requestID string) (Result, error) {
	r := p.register(requestID)
	r.mu.Lock()
	r.result = Result{Status: StatusRunning}
	r.serverDir = ""
	r.mu.Unlock()
	logs := p.Logs

	fail := func(msg, link string, err error) (Result, error) {
		logs.Append(requestID, "ERROR: "+msg)
		logs.Append(requestID, "Generation failed")
		r.mu.Lock()
		r.result.Status = StatusFailed
		r.result.ErrorMessage = msg
		r.result.DownloadLink = link
		result := r.result
		r.mu.Unlock()
		p.scheduleAbandonCleanup(requestID)
		if err == nil {
			err = errors.New(msg)
		}
		return result, err
	}

	logs.Append(requestID, "Extracting modpack...")
	extractDir, err := os.MkdirTemp("", "msfg-extract-")
	if err != nil {
		return fail("Could not allocate scratch space", "", err)
	}
	defer os.RemoveAll(extractDir)

	if err := archive.Unzip(uploadPath, extractDir); err != nil {
		return fail("Uploaded file is not a valid modpack archive", "", fmt.Errorf("%w: %w", ErrInvalidModpack, err))
	}

	index, err := domain.ReadIndex(extractDir)
	if err != nil {
		return fail("Modpack has no readable modrinth.index.json", "", fmt.Errorf("%w: %w", ErrInvalidModpack, err))
	}

	mcVersion := index.MinecraftVersion()
	if mcVersion == "" {
		return fail("Modpack does not declare a Minecraft version", "", ErrInvalidModpack)
	}
	detected, loaderVersion, err := domain.DetectLoader(index.Dependencies)
	if err != nil {
		return fail("Modpack does not declare a supported mod loader", "", fmt.Errorf("%w: %w", ErrInvalidModpack, err))
	}
	logs.Append(requestID, fmt.Sprintf("Detected %s %s on Minecraft %s", detected, loaderVersion, mcVersion))

	r.mu.Lock()
	r.result.Loader = detected
	r.result.MCVersion = mcVersion
	r.mu.Unlock()

	baseName := domain.SanitizeBaseName(uploadName)
	serverDir := filepath.Join(p.ServerRoot, fmt.Sprintf("%s-%s%s", baseName, requestID, dirSuffix))
	os.RemoveAll(serverDir)
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		return fail("Could not create the server directory", "", err)
	}
	r.mu.Lock()
	r.serverDir = serverDir
	r.mu.Unlock()

	jobs, skipped := p.modJobs(index, serverDir)
	if skipped > 0 {
		logs.Append(requestID, fmt.Sprintf("Skipped %d non-mod index entries", skipped))
	}
	logs.Append(requestID, fmt.Sprintf("Downloading %d mods...", len(jobs)))
	if failedCount := p.Downloader.FetchAll(ctx, jobs, requestID, p.Workers); failedCount > 0 {
		logs.Append(requestID, fmt.Sprintf("%d of %d mod downloads failed", failedCount, len(jobs)))
	}

	if err := p.copyOverrides(ctx, extractDir, serverDir, requestID); err != nil {
		return fail("Could not apply modpack overrides", "", err)
	}

	prov, err := loader.For(detected, p.LoaderDeps)
	if err != nil {
		return fail(err.Error(), "", err)
	}
	if err := prov.Provision(ctx, serverDir, mcVersion, loaderVersion, requestID); err != nil {
		var lerr *loader.Error
		if errors.As(err, &lerr) {
			return fail(lerr.Message, lerr.DownloadLink, err)
		}
		return fail("Server installation failed", "", err)
	}

	if err := loader.WriteEULA(serverDir); err != nil {
		return fail("Could not write eula.txt", "", err)
	}

	logs.Append(requestID, "Packaging server...")
	zipPath := serverDir + ".zip"
	files, bytes, err := archive.ZipDir(serverDir, zipPath, p.ZipLimits)
	if err != nil {
		return fail("Could not package the generated server", "", err)
	}
	if info, serr := os.Stat(zipPath); serr != nil || info.Size() < minArchiveBytes {
		os.Remove(zipPath)
		return fail("Generated archive is suspiciously small", "", serr)
	}
	logs.Append(requestID, fmt.Sprintf("Packaged %d files (%d bytes)", files, bytes))

	total := p.Counter.Increment(ctx)
	logs.Append(requestID, fmt.Sprintf("Server #%d generated", total))

	r.mu.Lock()
	r.result.Status = StatusCompleted
	r.result.ZipPath = zipPath
	result := r.result
	r.mu.Unlock()

	logs.Append(requestID, "Generation complete. Your server is ready to download.")
	p.scheduleAbandonCleanup(requestID)
	return result, nil
}

// modJobs converts index file entries into download jobs. Only jars
// under mods/ are fetched; configs, shaderpacks and resourcepacks in
// the index are client-side and no part of a server. Filenames are
// sanitized before they touch the filesystem, and files already in
// place (from overrides of an earlier run) are not fetched again.
func (p *Pipeline) modJobs(index *domain.Index, serverDir string) ([]download.Job, int) {
	modsDir := filepath.Join(serverDir, "mods")
	os.MkdirAll(modsDir, 0o755)

	var jobs []download.Job
	skipped := 0
	for _, f := range index.Files {
		if len(f.Downloads) == 0 {
			skipped++
			continue
		}
		if !strings.HasPrefix(f.Path, "mods/") || !strings.HasSuffix(f.Path, ".jar") {
			skipped++
			continue
		}
		dest := filepath.Join(modsDir, domain.SanitizeJarName(f.Path))
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		jobs = append(jobs, download.Job{
			URL:      f.Downloads[0],
			Dest:     dest,
			MaxBytes: p.MaxFileBytes,
		})
	}
	return jobs, skipped
}

// copyOverrides copies extractDir/overrides into serverDir with a
// bounded parallel fan-out. A missing overrides directory is fine.
func (p *Pipeline) copyOverrides(ctx context.Context, extractDir, serverDir, requestID string) error {
	overrides := filepath.Join(extractDir, "overrides")
	if info, err := os.Stat(overrides); err != nil || !info.IsDir() {
		return nil
	}
	p.Logs.Append(requestID, "Applying overrides...")

	workers := p.CopyWorkers
	if workers <= 0 {
		workers = 8
	}
	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(workers)

	err := filepath.Walk(overrides, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(overrides, path)
		if err != nil {
			return err
		}
		target := filepath.Join(serverDir, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		grp.Go(func() error {
			return copyFile(path, target)
		})
		return nil
	})
	if werr := grp.Wait(); err == nil {
		err = werr
	}
	return err
}

// MarkDownloaded starts the deletion countdown for requestID,
// replacing the abandonment timer. Repeat downloads restart it.
func (p *Pipeline) MarkDownloaded(requestID string) {
	p.mu.Lock()
	r, ok := p.requests[requestID]
	p.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
	}
	r.cleanupTimer = time.AfterFunc(p.CleanupDelay, func() {
		p.cleanup(requestID)
	})
}

// scheduleAbandonCleanup covers requests whose archive is never
// fetched.
func (p *Pipeline) scheduleAbandonCleanup(requestID string) {
	p.mu.Lock()
	r, ok := p.requests[requestID]
	p.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleanupTimer == nil {
		r.cleanupTimer = time.AfterFunc(abandonTimeout, func() {
			p.cleanup(requestID)
		})
	}
}

// cleanup removes everything owned by requestID: server dir, archive,
// registry entry and log buffer.
func (p *Pipeline) cleanup(requestID string) {
	p.mu.Lock()
	r, ok := p.requests[requestID]
	delete(p.requests, requestID)
	p.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	serverDir := r.serverDir
	zipPath := r.result.ZipPath
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
	}
	r.mu.Unlock()

	if serverDir != "" && strings.HasSuffix(serverDir, dirSuffix) {
		os.RemoveAll(serverDir)
	}
	if zipPath != "" {
		os.Remove(zipPath)
	}
	p.Logs.Release(requestID)
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, in, 0o644)
}
