// package formatter renders a label's tracks as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/shared"
)

// Supported formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
	FormatJSON     = "json"
)

// Formats lists the accepted format names.
var Formats = []string{FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// LabelExport is a label with its resolved tracks, newest favorite first.
type LabelExport struct {
	Label  *models.Label
	Tracks []*models.Track
}

// Kind describes the label as "smart" or "static".
func (e *LabelExport) Kind() string {
	if e.Label.IsSmart() {
		return "smart"
	}
	return "static"
}

type trackJSON struct {
	SpotifyID   string    `json:"spotify_id"`
	URI         string    `json:"uri"`
	Name        string    `json:"name"`
	Artists     string    `json:"artists"`
	Album       string    `json:"album"`
	ReleaseDate string    `json:"release_date,omitempty"`
	Explicit    bool      `json:"explicit"`
	FavoritedAt time.Time `json:"favorited_at"`
}

type labelJSON struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Kind     string      `json:"kind"`
	Criteria *string     `json:"criteria,omitempty"`
	Tracks   []trackJSON `json:"tracks"`
}

// ParseFormat normalizes a format name, accepting "md" and "text" as aliases.
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	case FormatText, "text", "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: format %q (expected one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
}

// Extension returns the file extension for a normalized format.
func Extension(format string) string {
	switch format {
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	default:
		return "." + format
	}
}

// Render encodes export in the given format.
func Render(export *LabelExport, format string) ([]byte, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatJSON:
		return ExportToJSON(export)
	default:
		return ExportToText(export)
	}
}

// ExportToCSV converts a LabelExport to CSV with columns: Spotify ID, Name, Artists, Album, Released, Explicit, Favorited
func ExportToCSV(export *LabelExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Spotify ID", "Name", "Artists", "Album", "Released", "Explicit", "Favorited"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.SpotifyID,
			track.Name,
			track.ArtistNames,
			track.AlbumName,
			track.ReleaseDate,
			strconv.FormatBool(track.Explicit),
			track.FavoritedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a LabelExport to a Markdown document
func ExportToMarkdown(export *LabelExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Label.Name)

	if export.Label.IsSmart() {
		fmt.Fprintf(&buf, "**Criteria**: `%s`\n", *export.Label.Criteria)
	}
	fmt.Fprintf(&buf, "**Kind**: %s\n", export.Kind())
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(export.Tracks))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		albumPart := ""
		if track.AlbumName != "" {
			albumPart = fmt.Sprintf(" (%s)", track.AlbumName)
		}
		explicit := ""
		if track.Explicit {
			explicit = " **E**"
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s%s\n", i+1, artistsOrUnknown(track), track.Name, albumPart, explicit)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a LabelExport to plain text
func ExportToText(export *LabelExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Label: %s (%s)\n", export.Label.Name, export.Kind())
	if export.Label.IsSmart() {
		fmt.Fprintf(&buf, "Criteria: %s\n", *export.Label.Criteria)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, artistsOrUnknown(track), track.Name)
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a LabelExport to indented JSON
func ExportToJSON(export *LabelExport) ([]byte, error) {
	out := labelJSON{
		ID:       export.Label.ID,
		Name:     export.Label.Name,
		Kind:     export.Kind(),
		Criteria: export.Label.Criteria,
		Tracks:   make([]trackJSON, len(export.Tracks)),
	}
	for i, t := range export.Tracks {
		out.Tracks[i] = trackJSON{
			SpotifyID:   t.SpotifyID,
			URI:         "spotify:track:" + t.SpotifyID,
			Name:        t.Name,
			Artists:     t.ArtistNames,
			Album:       t.AlbumName,
			ReleaseDate: t.ReleaseDate,
			Explicit:    t.Explicit,
			FavoritedAt: t.FavoritedAt.UTC(),
		}
	}
	return shared.MarshalJSON(out, true)
}

// Filename returns the export file name for a label: its slug, short id and the format's extension.
func Filename(label *models.Label, format string) string {
	slug := shared.Slugify(label.Name)
	if slug == "" {
		slug = "label"
	}
	id := label.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s%s", slug, id, Extension(format))
}

// WriteExport renders export into dir and returns the written path.
//
// The directory is created when missing.
func WriteExport(export *LabelExport, dir, format string) (string, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return "", err
	}

	data, err := Render(export, format)
	if err != nil {
		return "", fmt.Errorf("failed to render label %q: %w", export.Label.Name, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, Filename(export.Label, format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func artistsOrUnknown(t *models.Track) string {
	if t.ArtistNames == "" {
		return "Unknown Artist"
	}
	return t.ArtistNames
}
