package heartbeat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"b3repro/config"
	"b3repro/internal/types"
)

const (
	TaskHeartbeatQueue = "task_heartbeat"

	// A task signals once per loop iteration; iterations can be much shorter
	// than the orchestrator's liveness window, so repeat signals inside this
	// interval are coalesced.
	alivePeriod = 10 * time.Second
)

// Reporter emits fire-and-forget liveness signals. Failures are logged, never
// surfaced: a missed heartbeat must not stop a healthy loop.
type Reporter interface {
	Alive()
}

type entry struct {
	TaskID    string     `json:"task_id"`
	JobID     string     `json:"job_id"`
	MachineID string     `json:"machine_id"`
	Data      []dataItem `json:"data"`
}

type dataItem struct {
	Type string `json:"type"`
}

type Params struct {
	fx.In

	Lc        fx.Lifecycle
	AppConfig *config.AppConfig
	Task      *types.TaskConfig
	Logger    *zap.Logger
}

// NewReporter connects to the broker named by the app config. Without a
// broker URL the reporter is a no-op, matching workers that run detached from
// an orchestrator.
func NewReporter(p Params) Reporter {
	if p.AppConfig.RabbitMQURL == "" {
		p.Logger.Info("no broker configured, heartbeats disabled")
		return &noopReporter{}
	}

	r := &amqpReporter{
		logger: p.Logger,
		url:    p.AppConfig.RabbitMQURL,
		entry: entry{
			TaskID:    p.Task.Common.TaskID,
			JobID:     p.Task.Common.JobID,
			MachineID: p.AppConfig.MachineID,
			Data:      []dataItem{{Type: "TaskAlive"}},
		},
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return r.connect()
		},
		OnStop: func(ctx context.Context) error {
			return r.close()
		},
	})
	return r
}

type amqpReporter struct {
	logger *zap.Logger
	url    string
	entry  entry

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	lastSent time.Time
}

func (r *amqpReporter) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if _, err := ch.QueueDeclare(TaskHeartbeatQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	return nil
}

func (r *amqpReporter) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *amqpReporter) Alive() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil || time.Since(r.lastSent) < alivePeriod {
		return
	}

	body, err := json.Marshal(r.entry)
	if err != nil {
		r.logger.Warn("failed to marshal heartbeat", zap.Error(err))
		return
	}
	err = r.ch.Publish("", TaskHeartbeatQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		r.logger.Warn("failed to publish heartbeat", zap.Error(err))
		return
	}
	r.lastSent = time.Now()
}

type noopReporter struct{}

func (*noopReporter) Alive() {}
