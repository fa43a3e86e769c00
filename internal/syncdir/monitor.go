package syncdir

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"b3repro/internal/types"
)

// Monitor watches a synced directory and mirrors newly created files to its
// remote container. Uploads are best-effort; a failed push is logged and the
// file is left for the next task to reconcile.
type Monitor struct {
	logger *zap.Logger
	client Client
}

func NewMonitor(logger *zap.Logger, client Client) *Monitor {
	return &Monitor{logger: logger, client: client}
}

// Watch starts mirroring dir until ctx is done. It returns after the watcher
// is registered; events are handled on a background goroutine. Directories
// without a remote location are not watched.
func (m *Monitor) Watch(ctx context.Context, dir types.SyncedDir) error {
	if dir.RemotePath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir.LocalPath); err != nil {
		watcher.Close()
		return err
	}
	m.logger.Debug("watching synced dir", zap.String("local_path", dir.LocalPath))

	go m.watch(ctx, watcher, dir)
	return nil
}

func (m *Monitor) watch(ctx context.Context, watcher *fsnotify.Watcher, dir types.SyncedDir) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if err := m.client.PushFile(ctx, dir, event.Name); err != nil {
				m.logger.Warn("failed to push new file",
					zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
