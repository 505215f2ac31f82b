package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/stackvity/vfsim/internal/filesystem"
	"github.com/stackvity/vfsim/internal/storage"
)

// Step operations.
const (
	OpMkdir  = "mkdir"
	OpWrite  = "write"
	OpAppend = "append"
	OpRemove = "remove"
	OpRename = "rename"
	OpCopy   = "copy"
	OpChmod  = "chmod"
	OpAttrib = "attrib"
)

var ErrUnknownOp = errors.New("unknown script operation")

// Step is one mutation. Paths are used as given, so they may be relative to
// the working directory of the filesystem.
type Step struct {
	Op         string   `yaml:"op" toml:"op"`
	Path       string   `yaml:"path" toml:"path"`
	Target     string   `yaml:"target,omitempty" toml:"target,omitempty"`
	Content    string   `yaml:"content,omitempty" toml:"content,omitempty"`
	Mode       string   `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Attributes []string `yaml:"attributes,omitempty" toml:"attributes,omitempty"`
	Overwrite  bool     `yaml:"overwrite,omitempty" toml:"overwrite,omitempty"`
	Recursive  bool     `yaml:"recursive,omitempty" toml:"recursive,omitempty"`
}

// Script is an ordered list of steps.
type Script struct {
	Steps []Step `yaml:"steps" toml:"steps"`
}

// StepError reports the first step that failed.
type StepError struct {
	Index int
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s %s): %v", e.Index, e.Step.Op, e.Step.Path, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// LoadScript reads a script document through fsys. An empty format is taken
// from the file extension.
func LoadScript(fsys filesystem.FileSystem, path string, format Format) (Script, error) {
	var s Script
	if err := readDocument(fsys, path, format, &s); err != nil {
		return Script{}, err
	}
	return s, nil
}

// ParseScript decodes a script document.
func ParseScript(data []byte, format Format) (Script, error) {
	var s Script
	if err := decode(data, format, &s); err != nil {
		return Script{}, err
	}
	return s, nil
}

// Run applies the steps in order and stops at the first failure, which is
// returned as a *StepError. It returns how many steps succeeded.
func (s Script) Run(ctx context.Context, fsys filesystem.FileSystem, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for i, step := range s.Steps {
		select {
		case <-ctx.Done():
			return i, &StepError{Index: i, Step: step, Err: ctx.Err()}
		default:
		}
		logger.Debug("Running script step", "index", i, "op", step.Op, "path", step.Path)
		if err := runStep(fsys, step); err != nil {
			logger.Error("Script step failed", "index", i, "op", step.Op, "path", step.Path, "error", err)
			return i, &StepError{Index: i, Step: step, Err: err}
		}
	}
	logger.Info("Script finished", "steps", len(s.Steps))
	return len(s.Steps), nil
}

func runStep(fsys filesystem.FileSystem, step Step) error {
	perm, err := parseMode(step.Mode)
	if err != nil {
		return err
	}
	switch step.Op {
	case OpMkdir:
		return fsys.MkdirAll(step.Path, orDefault(perm, defaultDirPerm))
	case OpWrite:
		return fsys.WriteFile(step.Path, []byte(step.Content), orDefault(perm, defaultFilePerm))
	case OpAppend:
		return fsys.AppendFile(step.Path, []byte(step.Content), orDefault(perm, defaultFilePerm))
	case OpRemove:
		if step.Recursive {
			return fsys.RemoveAll(step.Path)
		}
		return fsys.Remove(step.Path)
	case OpRename:
		return fsys.Rename(step.Path, step.Target)
	case OpCopy:
		return fsys.Copy(step.Path, step.Target, step.Overwrite)
	case OpChmod:
		if step.Mode == "" {
			return fmt.Errorf("%w: chmod needs a mode", ErrInvalidEntry)
		}
		return fsys.Chmod(step.Path, perm)
	case OpAttrib:
		attrs, err := storage.ParseAttributes(step.Attributes)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		return fsys.SetAttributes(step.Path, attrs)
	}
	return fmt.Errorf("%w: %q", ErrUnknownOp, step.Op)
}
