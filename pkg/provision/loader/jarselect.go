package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SelectServerJar picks the jar most likely to be the launchable
// server out of dir.
//
// Launch wrappers, installers and client jars are excluded first.
// Among the rest, names hinting at a server ("server", the loader's
// own name, "minecraft") win; ties keep directory-listing order. When
// exclusion removes every jar, the pre-exclusion list is used instead.
// Empty string means dir holds no jar at all.
func SelectServerJar(dir string, loaderName string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var all, jars []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".jar") {
			continue
		}
		all = append(all, name)
		if strings.Contains(lower, "launch") ||
			strings.Contains(lower, "installer") ||
			strings.Contains(lower, "client") {
			continue
		}
		jars = append(jars, name)
	}
	if len(jars) == 0 {
		// every jar looked like a wrapper; any jar beats none.
		jars = all
	}
	if len(jars) == 0 {
		return ""
	}

	loaderName = strings.ToLower(loaderName)
	score := func(name string) int {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "server"):
			return 3
		case loaderName != "" && strings.Contains(lower, loaderName):
			return 2
		case strings.HasPrefix(lower, "minecraft"):
			return 1
		}
		return 0
	}

	sort.SliceStable(jars, func(i, j int) bool {
		return score(jars[i]) > score(jars[j])
	})
	return jars[0]
}

// NormalizeServerJar guarantees serverDir contains a server.jar,
// renaming the best candidate when the installer used another name.
func NormalizeServerJar(serverDir, loaderName string) error {
	target := filepath.Join(serverDir, "server.jar")
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	picked := SelectServerJar(serverDir, loaderName)
	if picked == "" {
		return errNoServerJar
	}
	return os.Rename(filepath.Join(serverDir, picked), target)
}

// promoteNestedServerFiles lifts a server.jar and a libraries folder
// buried in a subdirectory up to the root of serverDir. Server bundles
// often wrap their content in a single top-level folder; a "lib"
// folder is renamed to "libraries" on the way.
func promoteNestedServerFiles(serverDir string) error {
	if _, err := os.Stat(filepath.Join(serverDir, "server.jar")); err != nil {
		if found := findNested(serverDir, "server.jar", false); found != "" {
			if err := os.Rename(found, filepath.Join(serverDir, "server.jar")); err != nil {
				return err
			}
		}
	}
	if _, err := os.Stat(filepath.Join(serverDir, "libraries")); err != nil {
		found := findNested(serverDir, "libraries", true)
		if found == "" {
			found = findNested(serverDir, "lib", true)
		}
		if found != "" {
			if err := os.Rename(found, filepath.Join(serverDir, "libraries")); err != nil {
				return err
			}
		}
	}
	return nil
}

// findNested returns the first entry under root named name, or "".
func findNested(root, name string, wantDir bool) string {
	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		if d.Name() == name && d.IsDir() == wantDir {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found
}
