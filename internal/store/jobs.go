package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Job statuses. A job advances monotonically through the pipeline; any
// status may transition to StatusFailed.
const (
	StatusPending        = "pending"
	StatusIdentifying    = "identifying"
	StatusAcquiring      = "acquiring"
	StatusSeparating     = "separating"
	StatusGeneratingMIDI = "generating_midi"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
)

// Job source types.
const (
	SourceSpotifyURL   = "spotify_url"
	SourceAudioURL     = "audio_url"
	SourceFileUpload   = "file_upload"
	SourceISRC         = "isrc"
	SourceSpotifyID    = "spotify_id"
	SourceAppleMusicID = "apple_music_id"
)

// TerminalStatuses are the statuses a job never leaves.
var TerminalStatuses = map[string]bool{
	StatusCompleted: true,
	StatusFailed:    true,
}

// Job is one unit of requested work.
type Job struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	SourceType         string     `json:"source_type"`
	SourceValue        string     `json:"source_value"`
	Title              *string    `json:"title,omitempty"`
	Artist             *string    `json:"artist,omitempty"`
	Album              *string    `json:"album,omitempty"`
	AlbumArt           *string    `json:"album_art,omitempty"`
	Duration           *int       `json:"duration,omitempty"`
	ISRC               *string    `json:"isrc,omitempty"`
	SpotifyID          *string    `json:"spotify_id,omitempty"`
	SonglinkData       *string    `json:"songlink_data,omitempty"`
	MasterAudioPath    *string    `json:"master_audio_path,omitempty"`
	MasterAudioFormat  *string    `json:"master_audio_format,omitempty"`
	MasterAudioService *string    `json:"master_audio_service,omitempty"`
	Progress           int        `json:"progress"`
	ProgressMessage    *string    `json:"progress_message,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// JobUpdate is a partial update produced by a pipeline step. Nil fields are
// left untouched; the whole update is applied as a single UPDATE statement.
type JobUpdate struct {
	Status             *string
	Title              *string
	Artist             *string
	Album              *string
	AlbumArt           *string
	Duration           *int
	ISRC               *string
	SpotifyID          *string
	SonglinkData       *string
	MasterAudioPath    *string
	MasterAudioFormat  *string
	MasterAudioService *string
	Progress           *int
	ProgressMessage    *string
	ErrorMessage       *string
	ExpiresAt          *time.Time
}

const jobColumns = `id, status, source_type, source_value, title, artist, album, album_art,
	duration, isrc, spotify_id, songlink_data,
	master_audio_path, master_audio_format, master_audio_service,
	progress, progress_message, error_message, expires_at, created_at, updated_at`

// CreateJob inserts a new pending job row.
func (s *Store) CreateJob(job *Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}

	_, err := s.db.Exec(`INSERT INTO jobs
		(id, status, source_type, source_value, title, artist, album, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID, job.Status, job.SourceType, job.SourceValue,
		job.Title, job.Artist, job.Album, now, now)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListRecentJobs returns up to limit jobs, newest first.
func (s *Store) ListRecentJobs(limit int) ([]*Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ApplyJobUpdate merges a partial update into the job row and bumps
// updated_at. A nil or empty update is a no-op.
func (s *Store) ApplyJobUpdate(id string, upd *JobUpdate) error {
	if upd == nil {
		return nil
	}

	set := []string{}
	args := []any{}
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Artist != nil {
		add("artist", *upd.Artist)
	}
	if upd.Album != nil {
		add("album", *upd.Album)
	}
	if upd.AlbumArt != nil {
		add("album_art", *upd.AlbumArt)
	}
	if upd.Duration != nil {
		add("duration", *upd.Duration)
	}
	if upd.ISRC != nil {
		add("isrc", *upd.ISRC)
	}
	if upd.SpotifyID != nil {
		add("spotify_id", *upd.SpotifyID)
	}
	if upd.SonglinkData != nil {
		add("songlink_data", *upd.SonglinkData)
	}
	if upd.MasterAudioPath != nil {
		add("master_audio_path", *upd.MasterAudioPath)
	}
	if upd.MasterAudioFormat != nil {
		add("master_audio_format", *upd.MasterAudioFormat)
	}
	if upd.MasterAudioService != nil {
		add("master_audio_service", *upd.MasterAudioService)
	}
	if upd.Progress != nil {
		add("progress", *upd.Progress)
	}
	if upd.ProgressMessage != nil {
		add("progress_message", *upd.ProgressMessage)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.ExpiresAt != nil {
		add("expires_at", upd.ExpiresAt.UTC())
	}
	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	res, err := s.db.Exec(`UPDATE jobs SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetJobStatus writes the status, progress and progress message a step
// publishes at entry.
func (s *Store) SetJobStatus(id, status string, progress int, message string) error {
	return s.ApplyJobUpdate(id, &JobUpdate{
		Status:          &status,
		Progress:        &progress,
		ProgressMessage: &message,
	})
}

// ListExpiredJobs returns jobs whose expires_at is in the past.
func (s *Store) ListExpiredJobs(now time.Time) ([]*Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs
		WHERE expires_at IS NOT NULL AND expires_at < ?`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListStaleJobs returns jobs stuck mid-pipeline whose last update is
// older than the cutoff. Used by the worker at startup to re-dispatch
// work abandoned by a crashed process. Pending jobs are excluded: their
// queue entry still exists, and re-enqueueing them would hand the same
// job to two workers at once.
func (s *Store) ListStaleJobs(cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM jobs
		WHERE status NOT IN (?, ?, ?) AND updated_at < ?`,
		StatusPending, StatusCompleted, StatusFailed, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// DeleteJob removes the job row; assets cascade.
func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var j Job
	var expiresAt sql.NullTime
	err := r.Scan(
		&j.ID, &j.Status, &j.SourceType, &j.SourceValue,
		&j.Title, &j.Artist, &j.Album, &j.AlbumArt,
		&j.Duration, &j.ISRC, &j.SpotifyID, &j.SonglinkData,
		&j.MasterAudioPath, &j.MasterAudioFormat, &j.MasterAudioService,
		&j.Progress, &j.ProgressMessage, &j.ErrorMessage,
		&expiresAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		j.ExpiresAt = &t
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
