// Package config loads errthang's configuration: the root directories to
// index, path-prefix exclusions, where the binary snapshot and SQLite
// catalog live, and the debounced-rebuild interval.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default project config file name.
const ConfigFileName = ".errthang.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Roots            []string `json:"roots"`
	ExcludePrefixes  []string `json:"exclude_prefixes,omitempty"`
	SnapshotPath     string   `json:"snapshot_path"`
	CatalogDir       string   `json:"catalog_dir"`
	DebounceInterval string   `json:"debounce_interval,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd         string        `json:"-"`
	RootsAbs             []string      `json:"-"`
	SnapshotPathAbs      string        `json:"-"`
	CatalogDirAbs        string        `json:"-"`
	DebounceIntervalTime time.Duration `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics).
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Roots:            nil,
		ExcludePrefixes:  []string{".git"},
		SnapshotPath:     filepath.Join(".errthang", "snapshot.bin"),
		CatalogDir:       filepath.Join(".errthang", "catalog"),
		DebounceInterval: "5s",
	}
}

func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "errthang", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "errthang", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride  string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath       string            // -c/--config flag value
	RootsOverride    []string          // positional root arguments; non-empty replaces config roots entirely
	ExcludeOverride  []string          // --exclude flag values; non-empty replaces config exclusions entirely
	SnapshotOverride string            // --snapshot flag value
	CatalogOverride  string            // --db flag value
	DebounceOverride string            // --debounce flag value
	Env              map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest
// wins):
//  1. Defaults
//  2. Global user config (~/.config/errthang/config.json or
//     $XDG_CONFIG_HOME/errthang/config.json)
//  3. Project config file at default location (.errthang.json, if it
//     exists) or an explicit file via -c/--config
//  4. CLI overrides
//
// RootsAbs, SnapshotPathAbs and CatalogDirAbs in the returned Config are
// resolved to absolute paths; the other path fields (including
// ExcludePrefixes) are kept as given.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if len(input.RootsOverride) > 0 {
		cfg.Roots = input.RootsOverride
	}

	if len(input.ExcludeOverride) > 0 {
		cfg.ExcludePrefixes = input.ExcludeOverride
	}

	if input.SnapshotOverride != "" {
		cfg.SnapshotPath = input.SnapshotOverride
	}

	if input.CatalogOverride != "" {
		cfg.CatalogDir = input.CatalogOverride
	}

	if input.DebounceOverride != "" {
		cfg.DebounceInterval = input.DebounceOverride
	}

	debounce, err := validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.DebounceIntervalTime = debounce

	cfg.RootsAbs = make([]string, len(cfg.Roots))
	for i, root := range cfg.Roots {
		cfg.RootsAbs[i] = resolveAbs(workDir, root)
	}

	cfg.SnapshotPathAbs = resolveAbs(workDir, cfg.SnapshotPath)
	cfg.CatalogDirAbs = resolveAbs(workDir, cfg.CatalogDir)

	return cfg, nil
}

func resolveAbs(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	globalCfgPath := getGlobalConfigPath(env)
	if globalCfgPath == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(globalCfgPath, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["snapshot_path"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, globalCfgPath, ErrSnapshotPathEmpty)
	}

	return cfg, globalCfgPath, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["snapshot_path"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, cfgFile, ErrSnapshotPathEmpty)
	}

	return cfg, cfgFile, nil
}

// loadConfigFile loads a config file. If mustExist is false, a missing file
// returns a zero Config and loaded=false rather than an error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, err := parseConfig(data)
	if err != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JWCC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["snapshot_path"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["snapshot_path"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if len(overlay.Roots) > 0 {
		base.Roots = overlay.Roots
	}

	if len(overlay.ExcludePrefixes) > 0 {
		base.ExcludePrefixes = overlay.ExcludePrefixes
	}

	if overlay.SnapshotPath != "" {
		base.SnapshotPath = overlay.SnapshotPath
	}

	if overlay.CatalogDir != "" {
		base.CatalogDir = overlay.CatalogDir
	}

	if overlay.DebounceInterval != "" {
		base.DebounceInterval = overlay.DebounceInterval
	}

	return base
}

func validateConfig(cfg Config) (time.Duration, error) {
	if len(cfg.Roots) == 0 {
		return 0, ErrNoRoots
	}

	if cfg.SnapshotPath == "" {
		return 0, ErrSnapshotPathEmpty
	}

	if cfg.CatalogDir == "" {
		return 0, ErrCatalogDirEmpty
	}

	debounce, err := time.ParseDuration(cfg.DebounceInterval)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrDebounceIntervalInvalid, cfg.DebounceInterval)
	}

	return debounce, nil
}
