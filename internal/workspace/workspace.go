// Package workspace owns the on-disk layout shared by the converter and the
// external optimizer steps.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	settingsDir = "settings"
	autotuneDir = "autotune"
)

type Workspace struct {
	root string
}

func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return &Workspace{root: abs}, nil
}

func (w *Workspace) Root() string { return w.root }

// Reset removes everything from a previous run and recreates the directory
// skeleton.
func (w *Workspace) Reset() error {
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("failed to clear %s: %w", w.root, err)
	}
	for _, dir := range []string{w.SettingsDir(), w.AutotuneDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Workspace) SettingsDir() string { return filepath.Join(w.root, settingsDir) }
func (w *Workspace) AutotuneDir() string { return filepath.Join(w.root, autotuneDir) }

// ProfilePath is the primary baseline profile artifact.
func (w *Workspace) ProfilePath() string {
	return filepath.Join(w.root, settingsDir, "profile.json")
}

// ProfileCopyPaths lists the byte-identical copies of the baseline profile:
// the current pump profile, the autotune seed, the optimizer's pump profile
// and the working profile.
func (w *Workspace) ProfileCopyPaths() []string {
	return []string{
		filepath.Join(w.root, settingsDir, "pumpprofile.json"),
		filepath.Join(w.root, settingsDir, "autotune.json"),
		w.PumpProfilePath(),
		w.WorkingProfilePath(),
	}
}

func (w *Workspace) PumpProfilePath() string {
	return filepath.Join(w.root, autotuneDir, "profile.pump.json")
}

// WorkingProfilePath is the profile overwritten at the end of every day.
func (w *Workspace) WorkingProfilePath() string {
	return filepath.Join(w.root, autotuneDir, "profile.json")
}

func (w *Workspace) EntriesPath(date string) string {
	return filepath.Join(w.root, fmt.Sprintf("entries-%s.json", date))
}

func (w *Workspace) TreatmentsPath() string {
	return filepath.Join(w.root, "treatments.json")
}

func (w *Workspace) PrepOutputPath(date string) string {
	return filepath.Join(w.root, fmt.Sprintf("autotune.%s.json", date))
}

func (w *Workspace) CoreOutputPath(date string) string {
	return filepath.Join(w.root, fmt.Sprintf("newprofile.%s.json", date))
}

func (w *Workspace) ArchivePath(date string) string {
	return filepath.Join(w.root, autotuneDir, fmt.Sprintf("profile.%s.json", date))
}

func (w *Workspace) RecommendationsPath() string {
	return filepath.Join(w.root, autotuneDir, "autotune_recommendations.log")
}

// Rel returns path relative to the workspace root.
func (w *Workspace) Rel(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// MarshalJSON renders v in the pretty-printed form every artifact uses.
func MarshalJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", " ")
}

func (w *Workspace) WriteJSON(path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return w.WriteFile(path, data)
}

func (w *Workspace) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
