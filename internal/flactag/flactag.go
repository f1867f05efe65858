// Package flactag embeds vorbis comments and cover art into acquired
// FLAC masters.
package flactag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

// Tag is the metadata written into a master file.
type Tag struct {
	Title  string
	Artist string
	Album  string
	Date   string
	ISRC   string
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Embed writes the tag into the FLAC file at path, replacing any existing
// vorbis comment block. coverURL, when non-empty, is fetched and embedded
// as the front cover; a cover fetch failure does not fail the embed.
func Embed(path string, tag Tag, coverURL string) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	cmtIdx := -1
	for idx, block := range f.Meta {
		if block.Type == flac.VorbisComment {
			cmtIdx = idx
			break
		}
	}

	cmt := flacvorbis.New()
	if tag.Title != "" {
		_ = cmt.Add(flacvorbis.FIELD_TITLE, tag.Title)
	}
	if tag.Artist != "" {
		_ = cmt.Add(flacvorbis.FIELD_ARTIST, tag.Artist)
	}
	if tag.Album != "" {
		_ = cmt.Add(flacvorbis.FIELD_ALBUM, tag.Album)
	}
	if tag.Date != "" {
		_ = cmt.Add(flacvorbis.FIELD_DATE, tag.Date)
	}
	if tag.ISRC != "" {
		_ = cmt.Add(flacvorbis.FIELD_ISRC, tag.ISRC)
	}

	cmtBlock := cmt.Marshal()
	if cmtIdx < 0 {
		f.Meta = append(f.Meta, &cmtBlock)
	} else {
		f.Meta[cmtIdx] = &cmtBlock
	}

	if coverURL != "" {
		if err := embedCover(f, coverURL); err != nil {
			slog.Warn("Failed to embed cover art", "url", coverURL, "error", err)
		}
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}
	return nil
}

func embedCover(f *flac.File, coverURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cover download returned status %d", resp.StatusCode)
	}

	imgData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read cover: %w", err)
	}

	mime := http.DetectContentType(imgData)
	picture, err := flacpicture.NewFromImageData(
		flacpicture.PictureTypeFrontCover,
		"Cover",
		imgData,
		mime,
	)
	if err != nil {
		return fmt.Errorf("failed to create picture block: %w", err)
	}

	pictureBlock := picture.Marshal()

	for i := len(f.Meta) - 1; i >= 0; i-- {
		if f.Meta[i].Type == flac.Picture {
			f.Meta = append(f.Meta[:i], f.Meta[i+1:]...)
		}
	}
	f.Meta = append(f.Meta, &pictureBlock)
	return nil
}
