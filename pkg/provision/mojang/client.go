// Package mojang resolves vanilla server jar downloads from the
// official launcher version manifest.
package mojang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultManifestURL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

var ErrVersionUnknown = errors.New("minecraft version not in manifest")

type Client struct {
	ManifestURL string
	HTTP        *http.Client
}

func NewClient() *Client {
	return &Client{
		ManifestURL: DefaultManifestURL,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}
}

type manifest struct {
	Versions []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"versions"`
}

type versionDetail struct {
	Downloads struct {
		Server struct {
			URL string `json:"url"`
		} `json:"server"`
	} `json:"downloads"`
}

// ServerJarURL walks manifest -> version detail -> downloads.server.
func (c *Client) ServerJarURL(ctx context.Context, mcVersion string) (string, error) {
	var m manifest
	if err := c.getJSON(ctx, c.ManifestURL, &m); err != nil {
		return "", err
	}

	var detailURL string
	for _, v := range m.Versions {
		if v.ID == mcVersion {
			detailURL = v.URL
			break
		}
	}
	if detailURL == "" {
		return "", fmt.Errorf("%w: %s", ErrVersionUnknown, mcVersion)
	}

	var detail versionDetail
	if err := c.getJSON(ctx, detailURL, &detail); err != nil {
		return "", err
	}
	if detail.Downloads.Server.URL == "" {
		return "", fmt.Errorf("%w: %s has no server download", ErrVersionUnknown, mcVersion)
	}
	return detail.Downloads.Server.URL, nil
}

func (c *Client) getJSON(ctx context.Context, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mojang %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, into)
}
