package expand

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"b3repro/internal/types"
)

// Placeholder names accepted in analyzer command templates.
const (
	InputPath             = "input_path"
	InputFileName         = "input_file_name"
	InputFileNameNoExt    = "input_file_name_no_ext"
	TargetExe             = "target_exe"
	TargetOptions         = "target_options"
	AnalyzerExe           = "analyzer_exe"
	AnalyzerOptions       = "analyzer_options"
	ToolsDir              = "tools_dir"
	SetupDir              = "setup_dir"
	JobID                 = "job_id"
	TaskID                = "task_id"
	MicrosoftTelemetryKey = "microsoft_telemetry_key"
	InstanceTelemetryKey  = "instance_telemetry_key"
	CrashesAccount        = "crashes_account"
	CrashesContainer      = "crashes_container"
)

var tokenPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// ExpansionError reports a template token with no bound value. A broken
// template fails the same way on every iteration, so callers treat this as a
// configuration defect rather than a transient failure.
type ExpansionError struct {
	Placeholder string
	Template    string
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("no value bound for placeholder {%s} in template %q", e.Placeholder, e.Template)
}

// value is either a literal string or a list whose elements are themselves
// templates, joined with spaces after expansion.
type value struct {
	literal string
	list    []string
	isList  bool
}

// Expander substitutes {placeholder} tokens with values drawn from a fixed
// TaskConfig. The binding table is built once; evaluation is pure, so the
// same template always expands to the same string.
type Expander struct {
	values map[string]value
}

// FromTask builds the placeholder table for a crash-reproduction task.
// Optional bindings (tools dir, telemetry keys, remote account and container)
// are present only when the corresponding config value is set; referencing an
// absent one is an ExpansionError.
func FromTask(cfg *types.TaskConfig) *Expander {
	e := &Expander{values: make(map[string]value)}

	e.set(InputPath, cfg.Input)
	e.set(InputFileName, filepath.Base(cfg.Input))
	e.set(InputFileNameNoExt, strings.TrimSuffix(filepath.Base(cfg.Input), filepath.Ext(cfg.Input)))
	e.set(TargetExe, cfg.TargetExe)
	e.setList(TargetOptions, cfg.TargetOptions)
	e.set(AnalyzerExe, cfg.AnalyzerExe)
	e.setList(AnalyzerOptions, cfg.AnalyzerOptions)
	e.set(SetupDir, cfg.Common.SetupDir)
	e.set(JobID, cfg.Common.JobID)
	e.set(TaskID, cfg.Common.TaskID)

	if cfg.Tools != nil {
		e.set(ToolsDir, cfg.Tools.LocalPath)
	}
	if cfg.Common.MicrosoftTelemetryKey != "" {
		e.set(MicrosoftTelemetryKey, cfg.Common.MicrosoftTelemetryKey)
	}
	if cfg.Common.InstanceTelemetryKey != "" {
		e.set(InstanceTelemetryKey, cfg.Common.InstanceTelemetryKey)
	}
	if account := cfg.Crashes.Account(); account != "" {
		e.set(CrashesAccount, account)
	}
	if container := cfg.Crashes.Container(); container != "" {
		e.set(CrashesContainer, container)
	}

	return e
}

func (e *Expander) set(name, literal string) {
	e.values[name] = value{literal: literal}
}

func (e *Expander) setList(name string, list []string) {
	e.values[name] = value{list: list, isList: true}
}

// Evaluate resolves every token in the template. Unknown tokens fail the
// whole evaluation; they are never passed through or replaced with "".
func (e *Expander) Evaluate(template string) (string, error) {
	return e.evaluate(template, nil)
}

// EvaluateAll expands each template in order. The first failing template
// aborts the whole list.
func (e *Expander) EvaluateAll(templates []string) ([]string, error) {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		resolved, err := e.Evaluate(t)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (e *Expander) evaluate(template string, seen []string) (string, error) {
	var expandErr error
	resolved := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		v, ok := e.values[name]
		if !ok {
			if expandErr == nil {
				expandErr = &ExpansionError{Placeholder: name, Template: template}
			}
			return match
		}
		for _, prev := range seen {
			if prev == name {
				if expandErr == nil {
					expandErr = fmt.Errorf("placeholder {%s} expands to itself", name)
				}
				return match
			}
		}
		if !v.isList {
			out, err := e.evaluate(v.literal, append(seen, name))
			if err != nil {
				if expandErr == nil {
					expandErr = err
				}
				return match
			}
			return out
		}
		parts, err := e.evaluateList(v.list, append(seen, name))
		if err != nil {
			if expandErr == nil {
				expandErr = err
			}
			return match
		}
		return strings.Join(parts, " ")
	})
	if expandErr != nil {
		return "", expandErr
	}
	return resolved, nil
}

func (e *Expander) evaluateList(templates []string, seen []string) ([]string, error) {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		resolved, err := e.evaluate(t, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}
