package heartbeat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"b3repro/config"
	"b3repro/internal/types"
)

func TestNewReporter_NoBrokerIsNoop(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	r := NewReporter(Params{
		Lc:        lc,
		AppConfig: &config.AppConfig{},
		Task:      &types.TaskConfig{},
		Logger:    zap.NewNop(),
	})
	lc.RequireStart()
	defer lc.RequireStop()

	require.IsType(t, &noopReporter{}, r)
	r.Alive() // must not panic or block
}

func TestEntry_WireShape(t *testing.T) {
	e := entry{
		TaskID:    "task-1",
		JobID:     "job-1",
		MachineID: "machine-1",
		Data:      []dataItem{{Type: "TaskAlive"}},
	}
	body, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"task_id":"task-1","job_id":"job-1","machine_id":"machine-1","data":[{"type":"TaskAlive"}]}`,
		string(body))
}
