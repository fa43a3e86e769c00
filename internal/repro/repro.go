package repro

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"b3repro/internal/expand"
	"b3repro/internal/proc"
	"b3repro/internal/syncdir"
	"b3repro/internal/types"
	"b3repro/pkg/heartbeat"
	"b3repro/pkg/telemetry"
)

// Task reproduces one crash over and over: it pulls the crash corpus, then
// repeatedly runs the configured analyzer against the fixed input until the
// worker is torn down. Analyzer exit codes are not interpreted; only a
// configuration defect (broken template, analyzer that cannot start) or a
// setup failure ends the task.
type Task struct {
	logger     *zap.Logger
	cfg        *types.TaskConfig
	sync       syncdir.Client
	monitor    *syncdir.Monitor
	reporter   heartbeat.Reporter
	supervisor *proc.Supervisor
	tracer     trace.Tracer

	done chan struct{}
}

type TaskParams struct {
	fx.In

	Lc         fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
	Config     *types.TaskConfig
	Sync       syncdir.Client
	Monitor    *syncdir.Monitor
	Reporter   heartbeat.Reporter
	Supervisor *proc.Supervisor
	Telemetry  telemetry.Telemetry `optional:"true"`
}

func NewTask(p TaskParams) *Task {
	tracer := noop.NewTracerProvider().Tracer("")
	if p.Telemetry != nil {
		tracer = p.Telemetry.GetTracer()
	}

	task := &Task{
		logger:     p.Logger,
		cfg:        p.Config,
		sync:       p.Sync,
		monitor:    p.Monitor,
		reporter:   p.Reporter,
		supervisor: p.Supervisor,
		tracer:     tracer,
		done:       make(chan struct{}),
	}

	taskCtx, cancel := context.WithCancel(context.Background())

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(task.done)
				if err := task.Run(taskCtx); err != nil && !errors.Is(err, context.Canceled) {
					task.logger.Error("repro task failed", zap.Error(err))
					task.Shutdown(p.Shutdowner)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-task.done
			return nil
		},
	})
	return task
}

func (t *Task) Shutdown(shutdowner fx.Shutdowner) {
	if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
		t.logger.Error("failed to shut down", zap.Error(err))
	}
}

// Run performs one-time setup, then loops until ctx is cancelled or a fatal
// error occurs. There is no success exit: a healthy task runs until the
// orchestrator stops the worker.
func (t *Task) Run(ctx context.Context) error {
	if err := t.setup(ctx); err != nil {
		return err
	}

	// placeholder bindings are fixed for the task's lifetime
	expander := expand.FromTask(t.cfg)
	analyzerPath, err := expander.Evaluate(t.cfg.AnalyzerExe)
	if err != nil {
		return err
	}

	t.logger.Info("reproducing crash",
		zap.String("task_id", t.cfg.Common.TaskID),
		zap.String("analyzer", analyzerPath),
		zap.String("input", t.cfg.Input))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.reporter.Alive()
		if err := t.runTool(ctx, expander, analyzerPath); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// setup pulls the synced directories the analyzer depends on. Any failure
// here aborts the task before the first analysis.
func (t *Task) setup(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "repro setup")
	defer span.End()

	if err := t.sync.Pull(ctx, t.cfg.Crashes); err != nil {
		span.SetStatus(codes.Error, "failed to pull crashes dir")
		return fmt.Errorf("pull crashes dir: %w", err)
	}
	if t.cfg.Tools != nil {
		if err := t.sync.Pull(ctx, *t.cfg.Tools); err != nil {
			span.SetStatus(codes.Error, "failed to pull tools dir")
			return fmt.Errorf("pull tools dir: %w", err)
		}
		if err := t.sync.MarkExecutable(t.cfg.Tools.LocalPath); err != nil {
			span.SetStatus(codes.Error, "failed to mark tools executable")
			return fmt.Errorf("mark tools executable: %w", err)
		}
	}

	// mirror anything new in the crashes dir back out for the task's lifetime
	if err := t.monitor.Watch(ctx, t.cfg.Crashes); err != nil {
		t.logger.Warn("failed to watch crashes dir", zap.Error(err))
	}
	return nil
}

// runTool expands one concrete invocation and runs it to completion. The
// invocation is rebuilt every iteration; richer task kinds substitute
// per-run values, so cached expansions would go stale.
func (t *Task) runTool(ctx context.Context, expander *expand.Expander, analyzerPath string) error {
	ctx, span := t.tracer.Start(ctx, "analyzing input")
	defer span.End()

	args, err := expander.EvaluateAll(t.cfg.AnalyzerOptions)
	if err != nil {
		span.SetStatus(codes.Error, "failed to expand analyzer options")
		return err
	}

	env := make(map[string]string, len(t.cfg.AnalyzerEnv))
	for k, v := range t.cfg.AnalyzerEnv {
		resolved, err := expander.Evaluate(v)
		if err != nil {
			span.SetStatus(codes.Error, "failed to expand analyzer env")
			return err
		}
		env[k] = resolved
	}

	out, err := t.supervisor.Run(ctx, proc.Invocation{
		Path: analyzerPath,
		Args: args,
		Env:  env,
	})
	if err != nil {
		span.SetStatus(codes.Error, "analyzer failed to start")
		return err
	}

	// the exit code is recorded for the trace only; debuggers exit non-zero
	// during normal use, so any completed run is a good run
	span.SetAttributes(attribute.Int("analyzer.exit_code", out.ExitCode))
	return nil
}
