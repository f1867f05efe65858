// Package storage lays out pipeline artifacts on the local filesystem.
// Every job owns three private directories:
//
//	{root}/audio/{job_id}/master.flac
//	{root}/stems/{job_id}/{stem}.wav
//	{root}/midi/{job_id}/{stem}.mid
//
// plus a shared {root}/uploads/ area for ingress-uploaded files. No
// directory is ever shared between jobs.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout computes and manages artifact paths under a single root.
type Layout struct {
	root string
}

// NewLayout returns a layout rooted at root. Call EnsureDirs before use.
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the storage root directory.
func (l *Layout) Root() string {
	return l.root
}

// EnsureDirs creates the top-level storage directories.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.root, l.UploadsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return nil
}

// UploadsDir is the shared directory for ingress-uploaded files.
func (l *Layout) UploadsDir() string {
	return filepath.Join(l.root, "uploads")
}

// UploadPath returns the content-addressed path for an uploaded file.
func (l *Layout) UploadPath(id, ext string) string {
	return filepath.Join(l.UploadsDir(), id+ext)
}

// MasterDir is the per-job directory holding the acquired master.
func (l *Layout) MasterDir(jobID string) string {
	return filepath.Join(l.root, "audio", jobID)
}

// MasterPath is the canonical output path for an acquired master.
func (l *Layout) MasterPath(jobID string) string {
	return filepath.Join(l.MasterDir(jobID), "master.flac")
}

// StemDir is the per-job directory holding separated stems.
func (l *Layout) StemDir(jobID string) string {
	return filepath.Join(l.root, "stems", jobID)
}

// StemPath is the path for one separated stem file.
func (l *Layout) StemPath(jobID, stemType string) string {
	return filepath.Join(l.StemDir(jobID), stemType+".wav")
}

// MidiDir is the per-job directory holding MIDI transcriptions.
func (l *Layout) MidiDir(jobID string) string {
	return filepath.Join(l.root, "midi", jobID)
}

// MidiPath is the path for one stem's MIDI transcription.
func (l *Layout) MidiPath(jobID, stemType string) string {
	return filepath.Join(l.MidiDir(jobID), stemType+".mid")
}

// JobDirs returns all per-job directories, whether or not they exist.
func (l *Layout) JobDirs(jobID string) []string {
	return []string{l.MasterDir(jobID), l.StemDir(jobID), l.MidiDir(jobID)}
}

// RemoveJob deletes every directory belonging to a job. Missing
// directories are not an error.
func (l *Layout) RemoveJob(jobID string) error {
	for _, dir := range l.JobDirs(jobID) {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path names an existing non-empty file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
