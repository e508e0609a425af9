package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ServerConfig is the daemon configuration, loaded once at startup.
//
// Durations are given in seconds in the YAML file.
type ServerConfig struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"loglevel"`

	// StorageRoots are candidate directories for all persisted state
	// (scratch server dirs, artifact cache, count file). The first
	// writable one wins; resolved once and injected everywhere.
	StorageRoots []string `yaml:"storageRoots"`

	MaxUploadSizeBytes int64 `yaml:"maxUploadSizeBytes"`
	CleanupDelaySec    int   `yaml:"cleanupDelaySec"`

	Download  DownloadConfig  `yaml:"download"`
	Cache     CacheConfig     `yaml:"cache"`
	Installer InstallerConfig `yaml:"installer"`
	Admin     AdminConfig     `yaml:"admin"`
}

type DownloadConfig struct {
	Workers     int `yaml:"workers"`
	CopyWorkers int `yaml:"copyWorkers"`
	Retries     int `yaml:"retries"`
	TimeoutSec  int `yaml:"timeoutSec"`
}

type CacheConfig struct {
	MaxAgeSec    int   `yaml:"maxAgeSec"`
	MaxSizeBytes int64 `yaml:"maxSizeBytes"`
}

type InstallerConfig struct {
	TimeoutSec         int `yaml:"timeoutSec"`
	NeoForgeTimeoutSec int `yaml:"neoforgeTimeoutSec"`
	NoOutputTimeoutSec int `yaml:"noOutputTimeoutSec"`
}

type AdminConfig struct {
	UsersFile     string `yaml:"usersFile"`
	TokenSecret   string `yaml:"tokenSecret"`
	SessionAgeSec int    `yaml:"sessionAgeSec"`
}

func Default() *ServerConfig {
	return &ServerConfig{
		Listen:   ":8090",
		LogLevel: "info",
		StorageRoots: []string{
			"/opt/render/project/src/data",
			os.TempDir(),
		},
		MaxUploadSizeBytes: 500 * 1024 * 1024,
		CleanupDelaySec:    300,
		Download: DownloadConfig{
			Workers:     16,
			CopyWorkers: 8,
			Retries:     3,
			TimeoutSec:  30,
		},
		Cache: CacheConfig{
			MaxAgeSec:    7 * 24 * 3600,
			MaxSizeBytes: 10 * 1024 * 1024 * 1024,
		},
		Installer: InstallerConfig{
			TimeoutSec:         300,
			NeoForgeTimeoutSec: 900,
			NoOutputTimeoutSec: 300,
		},
		Admin: AdminConfig{
			UsersFile:     filepath.Join("config", "users.json"),
			SessionAgeSec: 3600,
		},
	}
}

func (c *ServerConfig) CleanupDelay() time.Duration {
	return time.Duration(c.CleanupDelaySec) * time.Second
}

func (c *DownloadConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSec) * time.Second
}

func (c *InstallerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *InstallerConfig) NeoForgeTimeout() time.Duration {
	return time.Duration(c.NeoForgeTimeoutSec) * time.Second
}

func (c *InstallerConfig) NoOutputTimeout() time.Duration {
	return time.Duration(c.NoOutputTimeoutSec) * time.Second
}

func (c *AdminConfig) SessionAge() time.Duration {
	return time.Duration(c.SessionAgeSec) * time.Second
}

// Storage is the resolved on-disk layout.
type Storage struct {
	// Root is the selected writable storage root.
	Root string

	// ServerRoot holds per-request server directories.
	ServerRoot string

	// CacheDir holds loader artifacts (forge/quilt bundles, vanilla jars).
	CacheDir string

	// CountFile is the generated-server counter file.
	CountFile string
}

// ResolveStorage probes StorageRoots in order and builds the layout
// under the first writable one.
//
// # Returns
//
// - Storage: resolved layout, with all directories created.
//
// - error: when no candidate root is writable.
func (c *ServerConfig) ResolveStorage() (Storage, error) {
	for _, root := range c.StorageRoots {
		if root == "" {
			continue
		}
		if !isWritableDir(root) {
			continue
		}
		s := Storage{
			Root:       root,
			ServerRoot: filepath.Join(root, "servers"),
			CacheDir:   filepath.Join(root, "loader_cache"),
			CountFile:  filepath.Join(root, "generated_server_count.txt"),
		}
		if err := os.MkdirAll(s.ServerRoot, 0o755); err != nil {
			continue
		}
		if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
			continue
		}
		return s, nil
	}
	return Storage{}, fmt.Errorf("no writable storage root in %v", c.StorageRoots)
}

func isWritableDir(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".test_write")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}
