package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// ManifestFile is the name of the plugin manifest looked up next to a plugin
const ManifestFile = "plugin.yaml"

// Manifest describes plugin metadata and packaging
type Manifest struct {
	ID          string     `yaml:"id"`          // Unique ID (e.g., "search-index")
	Name        string     `yaml:"name"`        // Display name
	Version     string     `yaml:"version"`     // Semver
	Description string     `yaml:"description"` // Short description
	Author      string     `yaml:"author"`      // Author name
	Convention  Convention `yaml:"convention"`  // native (default) or rpc
	Main        string     `yaml:"main"`        // Entry file relative to the manifest

	// dir is the directory the manifest was read from
	dir string
}

// Dir returns the directory containing the manifest
func (m *Manifest) Dir() string {
	return m.dir
}

// LoadManifest loads and parses a plugin manifest from a file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	manifest.dir = filepath.Dir(path)

	return &manifest, nil
}

// FindManifest returns the manifest nearest to path: the path itself when it
// is a directory, then each parent directory. A plugin without any manifest
// gets the defaults, anchored at the plugin's own directory.
func FindManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat plugin: %w", err)
	}

	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	start := dir

	for {
		candidate := filepath.Join(dir, ManifestFile)
		if _, err := os.Stat(candidate); err == nil {
			return LoadManifest(candidate)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat manifest: %w", err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return &Manifest{dir: start}, nil
}

// ResolvedConvention returns the declared convention, defaulting to native
func (m *Manifest) ResolvedConvention() Convention {
	if m.Convention == "" {
		return ConventionNative
	}
	return m.Convention
}

// EntryFor resolves the entry file for a plugin path. An explicit file path
// takes precedence over the manifest's main field.
func (m *Manifest) EntryFor(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat plugin: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	main := m.Main
	if main == "" {
		main = m.ResolvedConvention().DefaultEntry()
	}
	if filepath.IsAbs(main) {
		return main, nil
	}

	base := m.dir
	if base == "" {
		base = path
	}
	return filepath.Join(base, main), nil
}

// ValidateManifest performs basic validation on a plugin manifest
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errs []ValidationError

	switch manifest.ResolvedConvention() {
	case ConventionNative, ConventionRPC:
	default:
		errs = append(errs, ValidationError{
			Field:   "convention",
			Message: fmt.Sprintf("Unknown convention: %s", manifest.Convention),
		})
	}

	if manifest.Version != "" && !isValidSemver(manifest.Version) {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.Version),
		})
	}

	return errs
}

// isValidSemver checks if a version string follows semantic versioning
func isValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}
