package store

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "toolbridge.yaml"
	homeConfigName    = "config.yaml"
)

// ConfigFile is the declarative source configuration.
type ConfigFile struct {
	Sources map[string]Source `yaml:"sources"`
}

// DiscoverConfigPath resolves the config file with first-match semantics:
// explicitPath, ./toolbridge.yaml, then ~/.toolbridge/config.yaml.
func DiscoverConfigPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("store: resolve working directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("store: resolve user home: %w", err)
	}
	return DiscoverConfigPathFrom(explicitPath, cwd, home)
}

// DiscoverConfigPathFrom is DiscoverConfigPath with explicit directories.
// A missing explicit path is an error; missing defaults are not.
func DiscoverConfigPathFrom(explicitPath, cwd, home string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	var candidates []string
	if explicit != "" {
		candidates = []string{filepath.Clean(explicit)}
	} else {
		candidates = []string{
			filepath.Join(cwd, projectConfigName),
			filepath.Join(home, defaultStoreDir, homeConfigName),
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("store: config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("store: checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadConfigFile reads the sources declared in a config file, ordered by
// name. Environment references are expanded and relative paths resolve
// against the config file's directory.
func LoadConfigFile(path string) ([]Source, error) {
	// #nosec G304 -- path comes from local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: reading config %q: %w", path, err)
	}
	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("store: parsing config %q: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	out := make([]Source, 0, len(cfg.Sources))
	for _, name := range slices.Sorted(maps.Keys(cfg.Sources)) {
		src := expandSource(cfg.Sources[name])
		src.Name = strings.TrimSpace(name)
		if src.Path != "" {
			src.Path = resolveConfigRelative(baseDir, src.Path)
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("%w (%s)", err, path)
		}
		out = append(out, src)
	}
	return out, nil
}

// expandSource expands locations and args. Header and env values are
// expanded only when used, so secrets do not end up in the store.
func expandSource(src Source) Source {
	out := cloneSource(src)
	out.Type = SourceType(strings.ToLower(strings.TrimSpace(string(src.Type))))
	out.Path = strings.TrimSpace(os.ExpandEnv(src.Path))
	out.URL = strings.TrimSpace(os.ExpandEnv(src.URL))
	out.Endpoint = strings.TrimSpace(os.ExpandEnv(src.Endpoint))
	out.Command = strings.TrimSpace(os.ExpandEnv(src.Command))
	out.BaseURL = strings.TrimSpace(os.ExpandEnv(src.BaseURL))
	for i, arg := range out.Args {
		out.Args[i] = os.ExpandEnv(arg)
	}
	return out
}

func resolveConfigRelative(baseDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
