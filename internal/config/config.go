// Package config defines the project manifest (cbuild.yaml) and its loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	cberrors "git.home.luguber.info/inful/cbuild/internal/errors"
)

// ManifestName is the file name looked up in the project root.
const ManifestName = "cbuild.yaml"

// Build modes. Flag sets differ between modes, so objects compiled under
// one mode are never reused for another.
const (
	ModeDebug   = "debug"
	ModeRelease = "release"
)

// Manifest represents a parsed and validated cbuild.yaml.
type Manifest struct {
	Project ProjectConfig `yaml:"project"`
	Paths   PathsConfig   `yaml:"paths"`
	Build   BuildConfig   `yaml:"build"`

	// Root is the absolute directory containing the manifest. Set by Load;
	// all relative paths resolve against it.
	Root string `yaml:"-"`
}

// ProjectConfig identifies the project.
type ProjectConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// PathsConfig holds project-relative directory layout.
type PathsConfig struct {
	Source  string `yaml:"source,omitempty"`
	Include string `yaml:"include,omitempty"`
	Tests   string `yaml:"tests,omitempty"`
}

// BuildConfig holds compiler selection and per-mode flag lists.
type BuildConfig struct {
	Compiler string              `yaml:"compiler,omitempty"`
	Jobs     int                 `yaml:"jobs,omitempty"`
	Dir      string              `yaml:"dir,omitempty"`
	Modes    map[string][]string `yaml:"modes,omitempty"`
}

// Load reads and validates the manifest at the given path. The manifest's
// directory becomes the project root. Environment variables in the YAML
// content are expanded; a .env file alongside the manifest is applied first
// (without overriding existing process env).
func Load(manifestPath string) (*Manifest, error) {
	loadEnvFiles(filepath.Dir(manifestPath))

	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		return nil, cberrors.ManifestNotFound(manifestPath)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "failed to read manifest")
	}

	expanded := os.ExpandEnv(string(data))

	var m Manifest
	if err := yaml.Unmarshal([]byte(expanded), &m); err != nil {
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "failed to parse manifest")
	}

	root, err := filepath.Abs(filepath.Dir(manifestPath))
	if err != nil {
		return nil, cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "failed to resolve project root")
	}
	m.Root = root

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// applyDefaults fills unset fields after unmarshal.
func (m *Manifest) applyDefaults() {
	if m.Paths.Source == "" {
		m.Paths.Source = "src"
	}
	if m.Paths.Include == "" {
		m.Paths.Include = "include"
	}
	if m.Paths.Tests == "" {
		m.Paths.Tests = "tests"
	}
	if m.Build.Dir == "" {
		m.Build.Dir = "build"
	}
	if m.Build.Compiler == "" {
		m.Build.Compiler = "cc"
	}
	if cc := os.Getenv("CBUILD_CC"); cc != "" {
		m.Build.Compiler = cc
	}
	if jobs := os.Getenv("CBUILD_JOBS"); jobs != "" {
		if n, err := strconv.Atoi(jobs); err == nil && n > 0 {
			m.Build.Jobs = n
		}
	}
	if m.Build.Modes == nil {
		m.Build.Modes = make(map[string][]string)
	}
	if _, ok := m.Build.Modes[ModeDebug]; !ok {
		m.Build.Modes[ModeDebug] = []string{"-g", "-O0"}
	}
	if _, ok := m.Build.Modes[ModeRelease]; !ok {
		m.Build.Modes[ModeRelease] = []string{"-O2", "-DNDEBUG"}
	}
}

// Validate checks the manifest for structural problems. Directory existence
// is checked at build time, not here, so that clean and new still work
// against partially broken trees.
func (m *Manifest) Validate() error {
	if m.Project.Name == "" {
		return cberrors.ValidationFailed("project.name", "must not be empty")
	}
	if m.Project.Version != "" && !semver.IsValid("v"+m.Project.Version) {
		return cberrors.ValidationFailed("project.version", fmt.Sprintf("%q is not a valid semantic version", m.Project.Version))
	}
	if m.Build.Jobs < 0 {
		return cberrors.ValidationFailed("build.jobs", "must not be negative")
	}
	for mode := range m.Build.Modes {
		if mode != ModeDebug && mode != ModeRelease {
			return cberrors.ValidationFailed("build.modes", fmt.Sprintf("unknown mode %q", mode))
		}
	}
	return nil
}

// FlagsFor returns the compiler flags for a mode.
func (m *Manifest) FlagsFor(mode string) []string {
	return m.Build.Modes[mode]
}

// Workers returns the effective compile concurrency.
func (m *Manifest) Workers() int {
	if m.Build.Jobs > 0 {
		return m.Build.Jobs
	}
	return runtime.NumCPU()
}

// SourceDir returns the absolute source directory.
func (m *Manifest) SourceDir() string { return filepath.Join(m.Root, m.Paths.Source) }

// IncludeDir returns the absolute public include directory.
func (m *Manifest) IncludeDir() string { return filepath.Join(m.Root, m.Paths.Include) }

// PrivateIncludeDir returns the absolute private include directory
// (headers under the source tree).
func (m *Manifest) PrivateIncludeDir() string {
	return filepath.Join(m.Root, m.Paths.Source, "include")
}

// TestsDir returns the absolute tests directory.
func (m *Manifest) TestsDir() string { return filepath.Join(m.Root, m.Paths.Tests) }

// BuildDir returns the absolute build directory.
func (m *Manifest) BuildDir() string { return filepath.Join(m.Root, m.Build.Dir) }

// Write marshals the manifest to the given path. Used by scaffolding.
func (m *Manifest) Write(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "failed to marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cberrors.Wrap(err, cberrors.CategoryConfig, cberrors.SeverityFatal, "failed to write manifest")
	}
	return nil
}

// Default returns a manifest with defaults applied for a new project.
func Default(name, root string) *Manifest {
	m := &Manifest{
		Project: ProjectConfig{Name: name, Version: "0.1.0"},
		Root:    root,
	}
	m.applyDefaults()
	return m
}
