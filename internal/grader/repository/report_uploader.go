package repository

import (
	"bytes"
	"context"

	"grader/internal/common/storage"
	"grader/internal/grader/report"
	appErr "grader/pkg/errors"
)

// ReportUploader stores the rendered text report in object storage.
type ReportUploader struct {
	store  storage.ObjectStorage
	bucket string
}

func NewReportUploader(store storage.ObjectStorage, bucket string) *ReportUploader {
	return &ReportUploader{store: store, bucket: bucket}
}

// ReportKey is the object key of a run's report.
func ReportKey(runID string) string {
	return "reports/" + runID + ".txt"
}

func (u *ReportUploader) Name() string { return "minio" }

func (u *ReportUploader) Save(ctx context.Context, run Run) error {
	data, err := report.Bytes(run.Results)
	if err != nil {
		return err
	}
	key := ReportKey(run.RunID)
	if err := u.store.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), "text/plain; charset=utf-8"); err != nil {
		return appErr.Wrapf(err, appErr.ReportUploadFailed, "upload %s", key).WithDetail("bucket", u.bucket)
	}
	return nil
}

var _ Sink = (*ReportUploader)(nil)
