// Package mcjars speaks the mcjars.app build API, the source of truth
// for Forge and Quilt server artifacts.
package mcjars

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://mcjars.app/api"

// Project names accepted by the builds API.
const (
	ProjectForge = "FORGE"
	ProjectQuilt = "QUILT"
)

var (
	// ErrNoBuild: the API answered but no build matches the wanted
	// loader version.
	ErrNoBuild = errors.New("no matching build found")

	// ErrBadResponse: the API answered with something we cannot use.
	// Never retried; the payload shape will not improve.
	ErrBadResponse = errors.New("malformed mcjars response")
)

// Artifact is the resolved download for one build.
type Artifact struct {
	URL string

	// IsArchive marks a full server bundle (zip) rather than a single
	// installer jar.
	IsArchive bool
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// build is the wire shape shared by list and detail endpoints.
type build struct {
	ID           int64           `json:"id"`
	ProjectVer   string          `json:"projectVersionId"`
	ZipURL       string          `json:"zipUrl"`
	JarURL       string          `json:"jarUrl"`
	Installation [][]installStep `json:"installation"`
}

type installStep struct {
	Type string `json:"type"`
	File string `json:"file"`
	URL  string `json:"url"`
}

type buildsResponse struct {
	Success bool    `json:"success"`
	Builds  []build `json:"builds"`
	Build   *build  `json:"build"`
}

// ResolveBuild finds the downloadable artifact for the given loader
// version on minecraft mcVersion. An empty loaderVersion asks for the
// latest build.
//
// excludeFabric drops builds whose version id mentions fabric; the
// Quilt listing mixes them in and a Quilt server must not get one.
func (c *Client) ResolveBuild(ctx context.Context, project, mcVersion, loaderVersion string, excludeFabric bool) (Artifact, error) {
	var path string
	if loaderVersion == "" {
		path = fmt.Sprintf("/v1/builds/%s/%s/latest", project, mcVersion)
	} else {
		path = fmt.Sprintf("/v1/builds/%s/%s", project, mcVersion)
	}

	var resp buildsResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return Artifact{}, err
	}
	if !resp.Success {
		return Artifact{}, fmt.Errorf("%w: success=false for %s %s", ErrBadResponse, project, mcVersion)
	}

	candidates := resp.Builds
	if resp.Build != nil {
		candidates = append(candidates, *resp.Build)
	}
	if excludeFabric {
		kept := candidates[:0]
		for _, b := range candidates {
			if !strings.Contains(strings.ToLower(b.ProjectVer), "fabric") {
				kept = append(kept, b)
			}
		}
		candidates = kept
	}

	for _, b := range candidates {
		if loaderVersion != "" && !versionMatches(b.ProjectVer, loaderVersion) {
			continue
		}
		if art, ok := c.artifactOf(ctx, b); ok {
			return art, nil
		}
	}
	return Artifact{}, fmt.Errorf("%w: %s %s loader %q", ErrNoBuild, project, mcVersion, loaderVersion)
}

// artifactOf extracts the best download from a build: full zip first,
// then direct jar, then the installation step list, then a second
// fetch of the build detail when the listing came back thin.
func (c *Client) artifactOf(ctx context.Context, b build) (Artifact, bool) {
	if b.ZipURL != "" {
		return Artifact{URL: b.ZipURL, IsArchive: true}, true
	}
	if b.JarURL != "" {
		return Artifact{URL: b.JarURL}, true
	}
	if art, ok := scanInstallation(b.Installation); ok {
		return art, true
	}

	if b.ID == 0 {
		return Artifact{}, false
	}
	var resp buildsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/build/%d", b.ID), &resp); err != nil || resp.Build == nil {
		return Artifact{}, false
	}
	detail := *resp.Build
	if detail.ZipURL != "" {
		return Artifact{URL: detail.ZipURL, IsArchive: true}, true
	}
	if detail.JarURL != "" {
		return Artifact{URL: detail.JarURL}, true
	}
	return scanInstallation(detail.Installation)
}

// scanInstallation picks a download from the nested step array by
// priority: a zip bundle, then a server jar, then any other jar, then
// any download at all.
func scanInstallation(steps [][]installStep) (Artifact, bool) {
	var serverJar, otherJar, anyURL string
	for _, group := range steps {
		for _, step := range group {
			if step.Type != "download" || step.URL == "" {
				continue
			}
			file := strings.ToLower(step.File)
			switch {
			case strings.HasSuffix(file, ".zip"):
				return Artifact{URL: step.URL, IsArchive: true}, true
			case strings.HasSuffix(file, ".jar") && strings.Contains(file, "server"):
				if serverJar == "" {
					serverJar = step.URL
				}
			case strings.HasSuffix(file, ".jar"):
				if otherJar == "" {
					otherJar = step.URL
				}
			default:
				if anyURL == "" {
					anyURL = step.URL
				}
			}
		}
	}
	for _, u := range []string{serverJar, otherJar, anyURL} {
		if u != "" {
			return Artifact{URL: u}, true
		}
	}
	return Artifact{}, false
}

// versionMatches accepts both exact and composite version ids, e.g.
// loader "47.2.0" against projectVersionId "1.20.1-47.2.0".
func versionMatches(projectVer, loaderVersion string) bool {
	if projectVer == loaderVersion {
		return true
	}
	return strings.HasSuffix(projectVer, "-"+loaderVersion) ||
		strings.HasPrefix(projectVer, loaderVersion+"-")
}

func (c *Client) getJSON(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcjars %s: status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("%w: %s", ErrBadResponse, err)
	}
	return nil
}
