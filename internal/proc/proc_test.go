package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRun_AnyExitCodeIsNormal(t *testing.T) {
	s := NewSupervisor(zap.NewNop())

	tests := []struct {
		name     string
		inv      Invocation
		exitCode int
	}{
		{name: "zero", inv: Invocation{Path: "/bin/sh", Args: []string{"-c", "exit 0"}}, exitCode: 0},
		{name: "one", inv: Invocation{Path: "/bin/sh", Args: []string{"-c", "exit 1"}}, exitCode: 1},
		{name: "oom-style", inv: Invocation{Path: "/bin/sh", Args: []string{"-c", "exit 137"}}, exitCode: 137},
		{name: "killed", inv: Invocation{Path: "/bin/sh", Args: []string{"-c", "kill -9 $$"}}, exitCode: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Run(context.Background(), tt.inv)
			require.NoError(t, err, "exit status must never be an error")
			assert.Equal(t, tt.exitCode, out.ExitCode)
		})
	}
}

func TestRun_StartFailureNamesPath(t *testing.T) {
	s := NewSupervisor(zap.NewNop())

	out, err := s.Run(context.Background(), Invocation{Path: "/no/such/analyzer"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "/no/such/analyzer")
}

func TestRun_CapturesOutput(t *testing.T) {
	s := NewSupervisor(zap.NewNop())

	out, err := s.Run(context.Background(), Invocation{
		Path: "/bin/sh",
		Args: []string{"-c", "echo to-stdout; echo to-stderr 1>&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "to-stdout\n", out.Stdout)
	assert.Equal(t, "to-stderr\n", out.Stderr)
}

func TestRun_EnvOverlayApplied(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KEEP_ME", "kept")
	s := NewSupervisor(zap.NewNop())

	out, err := s.Run(context.Background(), Invocation{
		Path: "/bin/sh",
		Args: []string{"-c", `echo "log=${LOG_LEVEL:-unset} keep=$KEEP_ME extra=$EXTRA"`},
		Env:  map[string]string{"EXTRA": "added"},
	})
	require.NoError(t, err)
	assert.Equal(t, "log=unset keep=kept extra=added\n", out.Stdout)
}

func TestRun_CancelledContextKillsChild(t *testing.T) {
	s := NewSupervisor(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	out, err := s.Run(ctx, Invocation{Path: "/bin/sleep", Args: []string{"60"}})
	require.NoError(t, err)
	assert.Equal(t, -1, out.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second, "child must not outlive the cancelled context")
}

func TestOverlayEnv(t *testing.T) {
	base := []string{"LOG_LEVEL=debug", "PATH=/usr/bin", "HOME=/root"}
	env := overlayEnv(base, map[string]string{"HOME": "/tmp", "ASAN_OPTIONS": "abort_on_error=1"})

	assert.NotContains(t, env, "LOG_LEVEL=debug")
	assert.Contains(t, env, "PATH=/usr/bin")
	assert.NotContains(t, env, "HOME=/root")
	assert.Contains(t, env, "HOME=/tmp")
	assert.Contains(t, env, "ASAN_OPTIONS=abort_on_error=1")
}
