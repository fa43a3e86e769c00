package syncdir

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"b3repro/internal/types"
)

// Client mirrors synced directories against their remote containers. Pull
// must complete before the repro loop reads a directory; PushFile is used by
// the monitor to mirror new local files back out.
type Client interface {
	Pull(ctx context.Context, dir types.SyncedDir) error
	PushFile(ctx context.Context, dir types.SyncedDir, localFile string) error
	MarkExecutable(dir string) error
}

type httpClient struct {
	logger *zap.Logger
	client *http.Client
}

func NewClient(logger *zap.Logger) Client {
	return &httpClient{
		logger: logger,
		client: http.DefaultClient,
	}
}

// Pull materializes the remote container locally. The remote endpoint serves
// the container contents as a single tar.gz blob. Directories without a
// remote location are only created.
func (c *httpClient) Pull(ctx context.Context, dir types.SyncedDir) error {
	if err := os.MkdirAll(dir.LocalPath, 0755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}
	if dir.RemotePath == "" {
		c.logger.Debug("synced dir has no remote location, skipping pull",
			zap.String("local_path", dir.LocalPath))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dir.RemotePath, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("failed to pull synced dir",
			zap.String("remote_path", dir.RemotePath), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("failed to pull synced dir",
			zap.String("remote_path", dir.RemotePath), zap.String("status", resp.Status))
		return fmt.Errorf("failed to pull %s: %s", dir.RemotePath, resp.Status)
	}

	blob, err := os.CreateTemp("", "syncdir-*.tar.gz")
	if err != nil {
		return err
	}
	defer os.Remove(blob.Name())
	if _, err := io.Copy(blob, resp.Body); err != nil {
		blob.Close()
		return fmt.Errorf("download container blob: %w", err)
	}
	if err := blob.Close(); err != nil {
		return err
	}

	if err := unpackTarGz(blob.Name(), dir.LocalPath); err != nil {
		return err
	}

	c.logger.Info("pulled synced dir",
		zap.String("remote_path", dir.RemotePath),
		zap.String("local_path", dir.LocalPath))
	return nil
}

// PushFile uploads one local file into the directory's remote container under
// its base name.
func (c *httpClient) PushFile(ctx context.Context, dir types.SyncedDir, localFile string) error {
	if dir.RemotePath == "" {
		return nil
	}

	f, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer f.Close()

	target := dir.RemotePath + "/" + path.Base(filepath.ToSlash(localFile))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to push %s: %s", target, resp.Status)
	}

	c.logger.Debug("pushed file to synced dir",
		zap.String("file", localFile), zap.String("remote_path", dir.RemotePath))
	return nil
}

// MarkExecutable sets the executable bit on every regular file under dir.
// Pulled tool bundles lose their permissions in transit.
func (c *httpClient) MarkExecutable(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := os.Chmod(p, 0755); err != nil {
			return fmt.Errorf("mark %s executable: %w", p, err)
		}
		return nil
	})
}

// unpackTarGz extracts a tar.gz blob into dstFolder.
func unpackTarGz(tarGzFile, dstFolder string) error {
	cmd := exec.Command("tar", "-xzf", tarGzFile, "-C", dstFolder)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to unpack tar.gz file: %w", err)
	}
	return nil
}
