package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PublisherConfigFile is the default name of the project list file.
const PublisherConfigFile = "publisher.config.yaml"

// ProjectEntry names one project directory served by the publisher.
type ProjectEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// PublisherFile is the parsed project list.
type PublisherFile struct {
	FrozenConfig bool           `yaml:"frozenConfig"`
	Projects     []ProjectEntry `yaml:"projects"`
}

// LoadPublisherFile reads the project list at path. Relative project paths are
// resolved against serverRoot. A missing file yields an empty list.
func LoadPublisherFile(path, serverRoot string) (*PublisherFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return &PublisherFile{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var pf PublisherFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(pf.Projects))
	for i := range pf.Projects {
		p := &pf.Projects[i]
		if p.Name == "" {
			return nil, fmt.Errorf("%s: project %d has no name", path, i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%s: duplicate project %q", path, p.Name)
		}
		seen[p.Name] = true
		if p.Path == "" {
			p.Path = p.Name
		}
		if !filepath.IsAbs(p.Path) {
			p.Path = filepath.Join(serverRoot, p.Path)
		}
	}
	return &pf, nil
}
