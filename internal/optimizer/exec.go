package optimizer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

const (
	DefaultImage     = "pazaan/openaps"
	DefaultPrepBin   = "oref0-autotune-prep"
	DefaultCoreBin   = "oref0-autotune-core"
	DefaultReportBin = "oref0-autotune-recommends-report"

	containerRoot = "/app"
)

type Config struct {
	// Docker runs every step inside Image with Root mounted at /app.
	Docker bool
	Image  string
	// Root is the data directory. With Docker, paths under it are rewritten
	// to their container location.
	Root string

	PrepBin   string
	CoreBin   string
	ReportBin string
}

// Exec runs the steps as child processes, locally or through docker.
type Exec struct {
	cfg    Config
	logger *slog.Logger
}

func NewExec(cfg Config, logger *slog.Logger) (*Exec, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("optimizer root directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve optimizer root: %w", err)
	}
	cfg.Root = root

	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.PrepBin == "" {
		cfg.PrepBin = DefaultPrepBin
	}
	if cfg.CoreBin == "" {
		cfg.CoreBin = DefaultCoreBin
	}
	if cfg.ReportBin == "" {
		cfg.ReportBin = DefaultReportBin
	}

	return &Exec{cfg: cfg, logger: logger}, nil
}

func (e *Exec) Prep(ctx context.Context, req PrepRequest) error {
	args, err := e.paths(req.TreatmentsPath, req.ProfilePath, req.EntriesPath)
	if err != nil {
		return &StepError{Step: StepPrep, Err: err}
	}
	return e.run(ctx, StepPrep, e.cfg.PrepBin, args, req.OutputPath)
}

func (e *Exec) Core(ctx context.Context, req CoreRequest) error {
	args, err := e.paths(req.PrepOutputPath, req.ProfilePath, req.PumpProfilePath)
	if err != nil {
		return &StepError{Step: StepCore, Err: err}
	}
	return e.run(ctx, StepCore, e.cfg.CoreBin, args, req.OutputPath)
}

// Report writes the recommendations log under dataDir. Its stdout is only
// logged.
func (e *Exec) Report(ctx context.Context, dataDir string) error {
	args, err := e.paths(dataDir)
	if err != nil {
		return &StepError{Step: StepReport, Err: err}
	}
	return e.run(ctx, StepReport, e.cfg.ReportBin, args, "")
}

// Command builds the child process for bin with the given arguments.
func (e *Exec) Command(ctx context.Context, bin string, args []string) *exec.Cmd {
	if !e.cfg.Docker {
		return exec.CommandContext(ctx, bin, args...)
	}
	dockerArgs := []string{"run", "-i", "-v", e.cfg.Root + ":" + containerRoot, e.cfg.Image, bin}
	return exec.CommandContext(ctx, "docker", append(dockerArgs, args...)...)
}

func (e *Exec) run(ctx context.Context, step Step, bin string, args []string, outputPath string) error {
	cmd := e.Command(ctx, bin, args)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var stdout bytes.Buffer
	var out *os.File
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return &StepError{Step: step, Err: fmt.Errorf("failed to create output: %w", err)}
		}
		defer f.Close()
		out = f
		cmd.Stdout = f
	} else {
		cmd.Stdout = &stdout
	}

	e.logger.Debug("running optimizer step", "step", step, "cmd", strings.Join(cmd.Args, " "))

	if err := cmd.Run(); err != nil {
		return &StepError{Step: step, Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	if out != nil {
		if err := out.Close(); err != nil {
			return &StepError{Step: step, Err: fmt.Errorf("failed to close output: %w", err)}
		}
	}
	if stdout.Len() > 0 {
		e.logger.Debug("optimizer step output", "step", step, "stdout", strings.TrimSpace(stdout.String()))
	}

	return nil
}

// paths maps host paths to what the step sees. Locally they pass through;
// under docker they must live below Root.
func (e *Exec) paths(hostPaths ...string) ([]string, error) {
	if !e.cfg.Docker {
		return hostPaths, nil
	}
	mapped := make([]string, len(hostPaths))
	for i, p := range hostPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		rel, err := filepath.Rel(e.cfg.Root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s is outside the mounted directory %s", p, e.cfg.Root)
		}
		mapped[i] = path.Join(containerRoot, filepath.ToSlash(rel))
	}
	return mapped, nil
}
