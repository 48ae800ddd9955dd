// Package compiler turns a submission source file into an executable next to it.
package compiler

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"grader/internal/grader/model"
	"grader/internal/grader/process"
	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	DefaultCommand = "g++ -O2 -o {bin} {src}"
	DefaultTimeout = 5 * time.Second

	errorMarker = "ERROR"
)

// Config controls how submissions are built.
type Config struct {
	// Command is split like a shell word list; {src}, {bin}, {dir} and {problem} are expanded per word.
	Command          string        `yaml:"command"`
	Timeout          time.Duration `yaml:"timeout"`
	ShellCallPattern string        `yaml:"shellCallPattern"`
	// StrictExitCode also treats a non-zero compiler exit as failure.
	StrictExitCode bool `yaml:"strictExitCode"`
}

// Compiler builds submissions with an external toolchain.
type Compiler struct {
	runner     process.Runner
	argv       []string
	timeout    time.Duration
	shellCalls *regexp.Regexp
	strict     bool
}

// New validates cfg and prepares the command template.
func New(cfg Config, runner process.Runner) (*Compiler, error) {
	if runner == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("process runner is required")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ShellCallPattern == "" {
		cfg.ShellCallPattern = DefaultShellCallPattern
	}

	argv, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CompileTemplateError, "split compile command %q", cfg.Command)
	}
	if len(argv) == 0 {
		return nil, appErr.New(appErr.CompileTemplateError).WithMessage("compile command is empty")
	}
	pattern, err := regexp.Compile(cfg.ShellCallPattern)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CompileTemplateError, "compile shell call pattern %q", cfg.ShellCallPattern)
	}

	return &Compiler{
		runner:     runner,
		argv:       argv,
		timeout:    cfg.Timeout,
		shellCalls: pattern,
		strict:     cfg.StrictExitCode,
	}, nil
}

// Command returns the argument vector that would build sub.
func (c *Compiler) Command(sub model.Submission) []string {
	r := strings.NewReplacer(
		"{src}", sub.SourcePath,
		"{bin}", sub.BinaryPath(),
		"{dir}", sub.WorkDirectory,
		"{problem}", sub.ProblemID,
	)
	out := make([]string, len(c.argv))
	for i, arg := range c.argv {
		out[i] = r.Replace(arg)
	}
	return out
}

// Compile neutralizes shell calls in the source and runs the compiler.
// It reports false on any failure; the reason is logged, never returned.
func (c *Compiler) Compile(ctx context.Context, sub model.Submission) bool {
	fields := []zap.Field{
		zap.String("faculty_id", sub.FacultyID),
		zap.String("source", sub.SourcePath),
	}

	rewritten, err := NeutralizeShellCalls(sub.SourcePath, c.shellCalls)
	if err != nil {
		logger.Error(ctx, "source rewrite failed", append(fields, zap.Error(err))...)
		return false
	}
	if rewritten {
		logger.Info(ctx, "shell calls neutralized", fields...)
	}

	argv := c.Command(sub)
	res, err := c.runner.Run(ctx, process.Request{
		Path:    argv[0],
		Args:    argv[1:],
		Dir:     workDir(sub),
		Timeout: c.timeout,
	})
	if err != nil {
		logger.Error(ctx, "compiler launch failed", append(fields, zap.Error(err))...)
		return false
	}
	if res.TimedOut {
		logger.Warn(ctx, "compiler timed out", append(fields, zap.Duration("timeout", c.timeout))...)
		return false
	}

	output := res.Output()
	if LooksLikeCompileError(output) {
		logger.Info(ctx, "compilation failed", append(fields, zap.String("output", output))...)
		return false
	}
	if c.strict && res.ExitCode != 0 {
		logger.Info(ctx, "compiler exited non-zero",
			append(fields, zap.Int("exit_code", res.ExitCode), zap.String("output", output))...)
		return false
	}
	return true
}

// LooksLikeCompileError reports whether compiler output contains the error marker, in any case.
// The check is textual: localized diagnostics are missed and unrelated text mentioning
// "error" fails the build.
func LooksLikeCompileError(output string) bool {
	return strings.Contains(strings.ToUpper(output), errorMarker)
}

func workDir(sub model.Submission) string {
	if sub.WorkDirectory != "" {
		return sub.WorkDirectory
	}
	return filepath.Dir(sub.SourcePath)
}
