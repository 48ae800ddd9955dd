package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
)

// SubmissionDir is one "<homework>.<faculty>" directory under the submissions root.
type SubmissionDir struct {
	Path          string
	HomeworkLabel string
	FacultyID     string
}

// ParseDirName splits a submission directory name into homework label and faculty id.
// The label is trimmed to start at marker when marker occurs in it.
func ParseDirName(name, marker string) (label, facultyID string, err error) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", appErr.Newf(appErr.SubmissionNameInvalid, "directory %q is not <homework>.<faculty>", name).
			WithDetail("dir", name)
	}
	label = parts[0]
	if marker != "" {
		if idx := strings.Index(label, marker); idx >= 0 {
			label = label[idx:]
		}
	}
	return label, parts[1], nil
}

// Discover lists the submission directories under root, sorted by name.
// Directories with malformed names are logged and skipped.
// Returned paths are absolute because compiler and executor run with Dir set to the submission directory.
func (o *Orchestrator) Discover(ctx context.Context, root string) ([]SubmissionDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DiscoveryFailed, "resolve submissions root %s", root)
	}
	root = abs
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DiscoveryFailed, "read submissions root %s", root)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	dirs := make([]SubmissionDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label, faculty, err := ParseDirName(entry.Name(), o.cfg.Marker)
		if err != nil {
			logger.Warn(ctx, "skipping submission directory", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		dirs = append(dirs, SubmissionDir{
			Path:          filepath.Join(root, entry.Name()),
			HomeworkLabel: label,
			FacultyID:     faculty,
		})
	}
	return dirs, nil
}

// sourceFiles lists the files in dir carrying the configured source extension.
func (o *Orchestrator) sourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DiscoveryFailed, "read submission dir %s", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), o.cfg.SourceExt) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
