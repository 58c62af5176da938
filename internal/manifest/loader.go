package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader reads integration manifests from a directory of YAML files.
type Loader struct {
	dir      string
	logger   *zap.Logger
	validate *validator.Validate
}

// NewLoader creates a manifest loader for the given directory.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	return &Loader{
		dir:      dir,
		logger:   logger,
		validate: validator.New(),
	}
}

// Load reads every *.yaml/*.yml manifest in the loader's directory and
// appends the statically-known builtin entries. A manifest that fails to
// parse or validate is skipped and logged; it never aborts the load, so one
// broken file cannot take the whole catalog down.
//
// The builtin Atlassian entry is always appended, even when a loadable
// manifest of the same name exists. Duplicate entries are a known consequence
// and are preserved for compatibility.
func (l *Loader) Load() []*IntegrationManifest {
	var manifests []*IntegrationManifest

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Failed to read manifest directory",
				zap.String("dir", l.dir),
				zap.Error(err))
		}
	} else {
		var names []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".yaml" || ext == ".yml" {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			m, err := l.loadFile(filepath.Join(l.dir, name))
			if err != nil {
				l.logger.Warn("Skipping unparseable manifest",
					zap.String("file", name),
					zap.Error(err))
				continue
			}
			manifests = append(manifests, m)
		}
	}

	manifests = append(manifests, BuiltinAtlassian())
	return manifests
}

// loadFile parses and validates a single manifest file.
func (l *Loader) loadFile(path string) (*IntegrationManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m IntegrationManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := l.validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	return &m, nil
}

// BuiltinAtlassian returns the legacy Atlassian definition that is not
// expressed as a loadable manifest. Its OAuth flow is brokered by a hosted
// process outside this backend, so it carries no local credential
// requirements.
func BuiltinAtlassian() *IntegrationManifest {
	return &IntegrationManifest{
		Name:  "atlassian",
		Title: "Atlassian",
	}
}
