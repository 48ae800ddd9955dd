// Package workspace prepares the directory submissions are extracted into.
package workspace

import (
	"context"
	"os"
	"path/filepath"

	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
)

// Clean removes everything inside dir, creating dir when it does not exist.
// dir itself is kept so bind mounts and permissions survive between runs.
func Clean(ctx context.Context, dir string) error {
	if dir == "" || filepath.Clean(dir) == string(filepath.Separator) {
		return appErr.Newf(appErr.WorkspaceCleanupFailed, "refusing to clean %q", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceCleanupFailed, "create %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkspaceCleanupFailed, "read %s", dir)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return appErr.Wrapf(err, appErr.WorkspaceCleanupFailed, "remove %s", path)
		}
	}
	logger.Info(ctx, "workspace cleaned", zap.String("dir", dir), zap.Int("removed", len(entries)))
	return nil
}
