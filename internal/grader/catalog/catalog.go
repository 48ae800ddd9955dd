// Package catalog loads the per-problem test suites from a directory.
package catalog

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"grader/internal/grader/model"
	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type xmlTestFile struct {
	XMLName xml.Name         `xml:"testFile"`
	Tests   []model.TestCase `xml:"tests>test"`
}

type yamlTestFile struct {
	Tests []model.TestCase `yaml:"tests"`
}

// Load reads every suite file in dir. The file name without extension is the problem id.
// Files ending in .yaml or .yml are YAML, anything else is parsed as XML.
// An unreadable directory or an unparsable file fails the whole load.
func Load(ctx context.Context, dir string) (model.Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "read catalog dir %s", dir).
			WithDetail("dir", dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	catalog := model.Catalog{}
	sources := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		cases, err := LoadFile(path)
		if err != nil {
			return nil, err
		}

		problemID := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if prev, ok := sources[problemID]; ok {
			return nil, appErr.Newf(appErr.CatalogInvalid, "problem %s defined by both %s and %s", problemID, prev, name).
				WithDetail("problem", problemID)
		}
		sources[problemID] = name

		if len(cases) == 0 {
			logger.Warn(ctx, "skipping empty test suite", zap.String("file", path))
			continue
		}
		catalog.Add(model.TestSuite{ProblemID: problemID, Cases: cases})
	}

	logger.Info(ctx, "test catalog loaded", zap.String("dir", dir), zap.Int("suites", len(catalog)))
	return catalog, nil
}

// LoadFile parses one suite file.
func LoadFile(path string) ([]model.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "read %s", path).WithDetail("file", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(path, data)
	default:
		return parseXML(path, data)
	}
}

func parseXML(path string, data []byte) ([]model.TestCase, error) {
	var file xmlTestFile
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Declared single-byte charsets are read as-is.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(&file); err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogInvalid, "parse %s", path).WithDetail("file", path)
	}
	return file.Tests, nil
}

func parseYAML(path string, data []byte) ([]model.TestCase, error) {
	var file yamlTestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogInvalid, "parse %s", path).WithDetail("file", path)
	}
	return file.Tests, nil
}
