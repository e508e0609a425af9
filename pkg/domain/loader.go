package domain

import "errors"

// Loader is the mod-loading runtime a server requires.
type Loader string

const (
	Fabric   Loader = "fabric"
	Forge    Loader = "forge"
	NeoForge Loader = "neoforge"
	Quilt    Loader = "quilt"
)

func (l Loader) String() string {
	return string(l)
}

var ErrNoLoaderDetected = errors.New("no loader detected")

// dependency keys as they appear in the modpack index, in detection order.
var loaderDependencyKeys = []struct {
	key    string
	loader Loader
}{
	{"fabric-loader", Fabric},
	{"forge", Forge},
	{"quilt-loader", Quilt},
	{"neoforge", NeoForge},
}

// DetectLoader picks the loader declared in the index dependency
// mapping. The first known key wins; ErrNoLoaderDetected when none
// is present.
func DetectLoader(deps map[string]string) (Loader, string, error) {
	for _, cand := range loaderDependencyKeys {
		if version, ok := deps[cand.key]; ok {
			return cand.loader, version, nil
		}
	}
	return "", "", ErrNoLoaderDetected
}
