package compiler

import (
	"os"
	"regexp"

	appErr "grader/pkg/errors"
)

// DefaultShellCallPattern matches direct shell-invocation identifiers in C and C++ sources:
// system and the CRT variants _system, wsystem and _wsystem. Longer identifiers such as
// filesystem are left alone.
const DefaultShellCallPattern = `\b_?w?system\b`

const lineComment = "//"

// NeutralizeShellCalls rewrites the file at path in place, replacing every match of
// pattern with a line comment so the rest of that line is never compiled.
// It reports whether anything was replaced.
func NeutralizeShellCalls(path string, pattern *regexp.Regexp) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.SourceRewriteFailed, "stat %s", path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.SourceRewriteFailed, "read %s", path)
	}
	if !pattern.Match(src) {
		return false, nil
	}
	rewritten := pattern.ReplaceAllLiteral(src, []byte(lineComment))
	if err := os.WriteFile(path, rewritten, info.Mode().Perm()); err != nil {
		return false, appErr.Wrapf(err, appErr.SourceRewriteFailed, "write %s", path)
	}
	return true, nil
}
