package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Asset types and stem types.
const (
	AssetTypeStem = "stem"

	StemVocals       = "vocals"
	StemDrums        = "drums"
	StemBass         = "bass"
	StemMelody       = "melody"
	StemInstrumental = "instrumental"
	StemOther        = "other"
)

// TonalStems are the stem types worth transcribing to MIDI. Drum and
// instrumental stems are skipped.
var TonalStems = map[string]bool{
	StemVocals: true,
	StemMelody: true,
	StemBass:   true,
}

// Asset is a file produced by the pipeline, owned by exactly one job.
type Asset struct {
	ID        string     `json:"id"`
	JobID     string     `json:"job_id"`
	Type      string     `json:"type"`
	StemType  string     `json:"stem_type"`
	FilePath  string     `json:"file_path"`
	FileSize  int64      `json:"file_size"`
	MimeType  string     `json:"mime_type"`
	HasMIDI   bool       `json:"has_midi"`
	MIDIPath  *string    `json:"midi_path,omitempty"`
	Provider  *string    `json:"provider,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const assetColumns = `id, job_id, type, stem_type, file_path, file_size, mime_type,
	has_midi, midi_path, provider, expires_at, created_at`

// InsertAsset adds a new asset row. (job_id, stem_type) is unique.
func (s *Store) InsertAsset(a *Asset) error {
	a.CreatedAt = time.Now().UTC()
	if a.Type == "" {
		a.Type = AssetTypeStem
	}
	if a.MimeType == "" {
		a.MimeType = "audio/wav"
	}

	_, err := s.db.Exec(`INSERT INTO assets
		(id, job_id, type, stem_type, file_path, file_size, mime_type, has_midi, midi_path, provider, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobID, a.Type, a.StemType, a.FilePath, a.FileSize, a.MimeType,
		a.HasMIDI, a.MIDIPath, a.Provider, nullTime(a.ExpiresAt), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// ListAssets returns the assets belonging to a job.
func (s *Store) ListAssets(jobID string) ([]*Asset, error) {
	rows, err := s.db.Query(`SELECT `+assetColumns+` FROM assets WHERE job_id = ? ORDER BY stem_type`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// GetAssetByStemType finds one job's asset for a stem type.
func (s *Store) GetAssetByStemType(jobID, stemType string) (*Asset, error) {
	row := s.db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE job_id = ? AND stem_type = ?`, jobID, stemType)
	return scanAsset(row)
}

// SetAssetMIDI records a successful MIDI transcription for an asset.
// has_midi and midi_path move together; there is no way to set one
// without the other.
func (s *Store) SetAssetMIDI(assetID, midiPath string) error {
	res, err := s.db.Exec(`UPDATE assets SET has_midi = 1, midi_path = ? WHERE id = ?`, midiPath, assetID)
	if err != nil {
		return fmt.Errorf("set asset midi: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAsset(r rowScanner) (*Asset, error) {
	var a Asset
	var expiresAt sql.NullTime
	err := r.Scan(
		&a.ID, &a.JobID, &a.Type, &a.StemType, &a.FilePath, &a.FileSize, &a.MimeType,
		&a.HasMIDI, &a.MIDIPath, &a.Provider, &expiresAt, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
