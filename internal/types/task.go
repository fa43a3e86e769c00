package types

import (
	"errors"
	"net/url"
	"strings"
)

// TaskConfig describes one crash-reproduction assignment. It is parsed once
// when the worker starts and never mutated afterwards.
type TaskConfig struct {
	AnalyzerExe     string            `yaml:"analyzer_exe" json:"analyzer_exe"`
	AnalyzerOptions []string          `yaml:"analyzer_options" json:"analyzer_options"`
	AnalyzerEnv     map[string]string `yaml:"analyzer_env" json:"analyzer_env"`

	TargetExe     string   `yaml:"target_exe" json:"target_exe"`
	TargetOptions []string `yaml:"target_options" json:"target_options"`

	// Input is the local path of the single reproducing crash input.
	Input string `yaml:"input" json:"input"`

	Crashes SyncedDir  `yaml:"crashes" json:"crashes"`
	Tools   *SyncedDir `yaml:"tools" json:"tools,omitempty"`

	Common CommonConfig `yaml:"common" json:"common"`
}

// Validate checks the invariants the repro loop relies on.
func (c *TaskConfig) Validate() error {
	if c.AnalyzerExe == "" {
		return errors.New("analyzer_exe must not be empty")
	}
	if c.TargetExe == "" {
		return errors.New("target_exe must not be empty")
	}
	if c.Input == "" {
		return errors.New("input must not be empty")
	}
	if c.Crashes.LocalPath == "" {
		return errors.New("crashes.local_path must not be empty")
	}
	if c.Tools != nil && c.Tools.LocalPath == "" {
		return errors.New("tools.local_path must not be empty when tools is set")
	}
	return nil
}

// CommonConfig is the task identity shared by every task kind. The repro loop
// only reads it as a source of placeholder values.
type CommonConfig struct {
	JobID    string `yaml:"job_id" json:"job_id"`
	TaskID   string `yaml:"task_id" json:"task_id"`
	SetupDir string `yaml:"setup_dir" json:"setup_dir"`

	MicrosoftTelemetryKey string `yaml:"microsoft_telemetry_key" json:"microsoft_telemetry_key,omitempty"`
	InstanceTelemetryKey  string `yaml:"instance_telemetry_key" json:"instance_telemetry_key,omitempty"`
}

// SyncedDir pairs a local working directory with the remote container it is
// mirrored from. RemotePath is a container URL of the form
// https://<account>.<storage host>/<container>; it is empty for local-only
// directories.
type SyncedDir struct {
	LocalPath  string `yaml:"local_path" json:"local_path"`
	RemotePath string `yaml:"remote_path" json:"remote_path,omitempty"`
}

// Account returns the storage account of the remote container, or "" when the
// directory has no remote location.
func (d SyncedDir) Account() string {
	u, err := url.Parse(d.RemotePath)
	if err != nil || d.RemotePath == "" {
		return ""
	}
	host, _, _ := strings.Cut(u.Hostname(), ".")
	return host
}

// Container returns the container name of the remote location, or "" when the
// directory has no remote location.
func (d SyncedDir) Container() string {
	u, err := url.Parse(d.RemotePath)
	if err != nil || d.RemotePath == "" {
		return ""
	}
	container, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	return container
}
