package providers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BasicPitchProvider transcribes audio to MIDI with Spotify's basic-pitch
// CLI running locally. Configured whenever the binary is on PATH; no
// credentials involved.
type BasicPitchProvider struct {
	binary string
}

// NewBasicPitchProvider creates the local MIDI provider.
func NewBasicPitchProvider() *BasicPitchProvider {
	return &BasicPitchProvider{binary: "basic-pitch"}
}

func (b *BasicPitchProvider) Name() string { return "basic_pitch" }

func (b *BasicPitchProvider) Configured() bool {
	_, err := exec.LookPath(b.binary)
	return err == nil
}

// Configure is a no-op; the local CLI takes no credentials.
func (b *BasicPitchProvider) Configure(creds Credentials) {}

// Generate runs basic-pitch on the stem and renames its output to the
// canonical {stem}.mid path.
func (b *BasicPitchProvider) Generate(ctx context.Context, audioPath, outputDir, stemType string) (*MidiResult, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("directory error: %w", err)
	}

	cmd := exec.CommandContext(ctx, b.binary, outputDir, audioPath, "--save-midi")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("basic-pitch error: %w, output: %s", err, string(output))
	}

	// basic-pitch writes <input-basename>_basic_pitch.mid into outputDir.
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	produced := filepath.Join(outputDir, base+"_basic_pitch.mid")
	midiPath := filepath.Join(outputDir, stemType+".mid")
	if err := os.Rename(produced, midiPath); err != nil {
		return nil, fmt.Errorf("basic-pitch output missing: %w", err)
	}

	return &MidiResult{
		MidiPath: midiPath,
		FileSize: fileSize(midiPath),
	}, nil
}
