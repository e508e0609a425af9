package server

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadServerConfig reads the daemon config from a file. Fields left
// unset in the file keep their defaults. Empty filepath gives the
// default config unchanged.
func LoadServerConfig(filepath string) (*ServerConfig, error) {
	out := Default()
	if filepath == "" {
		return out, nil
	}
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(content, out); err != nil {
		return nil, err
	}
	return out, nil
}
