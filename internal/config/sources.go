package config

import "fmt"

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceDefault indicates a built-in default value.
	SourceDefault ConfigSource = "default"
	// SourceUser indicates user config (~/.enso/config.yaml).
	SourceUser ConfigSource = "user"
	// SourceProject indicates project config (.enso/config.yaml).
	SourceProject ConfigSource = "project"
	// SourceEnv indicates an environment variable override.
	SourceEnv ConfigSource = "env"
	// SourceFlag indicates a CLI flag override.
	SourceFlag ConfigSource = "flag"
)

// TrackedSource contains both the source type and the file path.
type TrackedSource struct {
	Source ConfigSource
	Path   string // file path, empty for defaults/env/flags
}

// String returns a human-readable source description.
func (ts TrackedSource) String() string {
	if ts.Path == "" {
		return string(ts.Source)
	}
	return fmt.Sprintf("%s: %s", ts.Source, ts.Path)
}

// TrackedConfig wraps a Config with per-value source tracking.
type TrackedConfig struct {
	// Config is the merged configuration.
	Config *Config

	// Sources maps config paths ("server.port") to their source type.
	Sources map[string]ConfigSource

	// TrackedSources maps config paths to full source info (source + path).
	TrackedSources map[string]TrackedSource
}

// NewTrackedConfig creates a TrackedConfig holding the defaults.
func NewTrackedConfig() *TrackedConfig {
	return &TrackedConfig{
		Config:         Default(),
		Sources:        make(map[string]ConfigSource),
		TrackedSources: make(map[string]TrackedSource),
	}
}

// SetSource records the source for a config path.
func (tc *TrackedConfig) SetSource(path string, source ConfigSource) {
	tc.Sources[path] = source
	tc.TrackedSources[path] = TrackedSource{Source: source}
}

// SetSourceWithPath records the source and originating file for a config path.
func (tc *TrackedConfig) SetSourceWithPath(path string, source ConfigSource, filePath string) {
	tc.Sources[path] = source
	tc.TrackedSources[path] = TrackedSource{Source: source, Path: filePath}
}

// GetSource returns the source for a config path, SourceDefault when
// nothing is recorded.
func (tc *TrackedConfig) GetSource(path string) ConfigSource {
	if source, ok := tc.Sources[path]; ok {
		return source
	}
	return SourceDefault
}

// GetTrackedSource returns the full source info for a config path.
func (tc *TrackedConfig) GetTrackedSource(path string) TrackedSource {
	if ts, ok := tc.TrackedSources[path]; ok {
		return ts
	}
	return TrackedSource{Source: SourceDefault}
}
