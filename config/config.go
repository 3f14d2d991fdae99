// Package config loads schedcore's compile-time tunables (spec §6)
// from a YAML file, grounded on gopkg.in/yaml.v3 the same way
// KhryptorGraphics-OllamaMax's services load their settings, instead
// of requiring a recompile to change NPROC, quanta, or the MLFQ/CFS/RT
// constants.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/go-foundations/schedcore/core"
)

// Load reads path and overlays it onto core.DefaultConfig(). Fields
// absent from the file keep their default value: the YAML document is
// a sparse override, not a full replacement.
func Load(path string) (core.Config, error) {
	cfg := core.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Clamp()
	return cfg, nil
}

// LoadOrDefault is Load, but falls back to core.DefaultConfig() when
// path is empty, the common case for schedctl invocations that don't
// pass --config.
func LoadOrDefault(path string) (core.Config, error) {
	if path == "" {
		return core.DefaultConfig(), nil
	}
	return Load(path)
}
