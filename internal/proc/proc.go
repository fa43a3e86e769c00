package proc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// workerLogEnv is the worker's own log configuration. It is stripped from the
// child environment so the analyzer never inherits orchestrator-internal
// logging settings.
const workerLogEnv = "LOG_LEVEL"

// Invocation is one fully-resolved analyzer run. Values are derived from the
// task config each iteration and discarded after the run.
type Invocation struct {
	Path string
	Args []string
	Env  map[string]string // overlaid on the inherited environment
}

// Output captures how a supervised run ended. The repro loop records it for
// logging only; no loop behavior is conditioned on it.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type Supervisor struct {
	logger *zap.Logger
}

func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Run starts exactly one subprocess and blocks until it exits. Behavior:
//
//  1. The child runs with stdin closed and stdout/stderr captured.
//  2. A start failure (missing binary, permission denied) is returned as an
//     error naming the resolved path; this is the only failing outcome.
//  3. Any exit status, zero or not, is a normal outcome. Debuggers routinely
//     exit non-zero.
//  4. If ctx is cancelled the child is killed; it never outlives the worker.
func (s *Supervisor) Run(ctx context.Context, inv Invocation) (*Output, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Env = overlayEnv(os.Environ(), inv.Env)
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Info("running analyzer", zap.String("command", cmd.String()))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("analyzer failed to start: %s: %w", inv.Path, err)
	}

	// exit status is deliberately not inspected
	_ = cmd.Wait()

	out := &Output{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	s.logger.Debug("analyzer exited", zap.Int("exit_code", out.ExitCode))
	return out, nil
}

// overlayEnv applies the invocation environment on top of the inherited one.
// Overlay keys replace inherited values; the worker's log configuration is
// always dropped.
func overlayEnv(base []string, overlay map[string]string) []string {
	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if name == workerLogEnv {
			continue
		}
		if _, replaced := overlay[name]; replaced {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}
