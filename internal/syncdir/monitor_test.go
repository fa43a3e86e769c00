package syncdir

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"b3repro/internal/types"
)

type pushRecorder struct {
	mu     sync.Mutex
	pushed []string
}

func (r *pushRecorder) Pull(ctx context.Context, dir types.SyncedDir) error { return nil }

func (r *pushRecorder) PushFile(ctx context.Context, dir types.SyncedDir, localFile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, filepath.Base(localFile))
	return nil
}

func (r *pushRecorder) MarkExecutable(dir string) error { return nil }

func (r *pushRecorder) pushedFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pushed...)
}

func TestMonitor_PushesNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &pushRecorder{}
	m := NewMonitor(zap.NewNop(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := m.Watch(ctx, types.SyncedDir{LocalPath: dir, RemotePath: "https://acct.blob.example.com/crashes"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "crash-3.bin"), []byte("DDDD"), 0644))

	require.Eventually(t, func() bool {
		for _, name := range rec.pushedFiles() {
			if name == "crash-3.bin" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMonitor_NoRemoteIsNoop(t *testing.T) {
	m := NewMonitor(zap.NewNop(), &pushRecorder{})
	err := m.Watch(context.Background(), types.SyncedDir{LocalPath: t.TempDir()})
	require.NoError(t, err)
}
