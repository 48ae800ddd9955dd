package archive

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"grader/internal/common/storage"
	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
)

// Fetcher downloads homework archives from object storage into a local directory.
type Fetcher struct {
	store  storage.ObjectStorage
	bucket string
	prefix string
	ext    *Extractor
}

// NewFetcher creates a Fetcher that keeps only objects the extractor would accept.
func NewFetcher(store storage.ObjectStorage, cfg Config, ext *Extractor) *Fetcher {
	return &Fetcher{store: store, bucket: cfg.Bucket, prefix: cfg.Prefix, ext: ext}
}

// Fetch copies matching objects into dir and returns how many were written.
func (f *Fetcher) Fetch(ctx context.Context, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, appErr.Wrapf(err, appErr.ArchiveExtractFailed, "create %s", dir)
	}
	count := 0
	var listErr error
	// The listing channel is drained to the end so the producer goroutine can exit.
	for obj := range f.store.ListObjects(ctx, f.bucket, f.prefix) {
		if obj.Err != nil {
			if listErr == nil {
				listErr = appErr.Wrapf(obj.Err, appErr.ArchiveExtractFailed, "list %s/%s", f.bucket, f.prefix)
			}
			continue
		}
		name := path.Base(obj.Key)
		if _, ok := f.ext.TargetName(name); !ok {
			continue
		}
		if err := f.download(ctx, obj.Key, filepath.Join(dir, name)); err != nil {
			logger.Warn(ctx, "archive download failed", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		count++
	}
	logger.Info(ctx, "archives fetched", zap.String("bucket", f.bucket), zap.Int("count", count))
	return count, listErr
}

func (f *Fetcher) download(ctx context.Context, key, target string) error {
	rc, err := f.store.GetObject(ctx, f.bucket, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(target, rc, f.ext.maxEntryBytes)
}
