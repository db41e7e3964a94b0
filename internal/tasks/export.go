package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/spotlabel/internal/formatter"
	"github.com/desertthunder/spotlabel/internal/models"
)

// ExportOpts contains configuration for label exports.
type ExportOpts struct {
	Format     string // Export format: csv, markdown, txt, json
	OutputDir  string // Base output directory (default: spotlabel_export_{epoch})
	NumWorkers int    // Concurrent workers (default: 4)
}

// LabelExportResult is the outcome of exporting one label.
type LabelExportResult struct {
	LabelID   string `json:"label_id"`
	LabelName string `json:"label_name"`
	Tracks    int    `json:"tracks"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"error,omitempty"`
	Error     error  `json:"-"`
}

// ExportResult summarizes an export run. It is also written as the manifest.
type ExportResult struct {
	Format          string              `json:"format"`
	OutputDirectory string              `json:"output_directory"`
	Total           int                 `json:"total"`
	Succeeded       int                 `json:"succeeded"`
	Failed          int                 `json:"failed"`
	Results         []LabelExportResult `json:"results"`
	ManifestPath    string              `json:"-"`
}

// Export writes every label of the user to its own file in opts.OutputDir, plus a manifest.
//
// Labels are resolved and written by a pool of workers. A label that fails to resolve or write
// is recorded in the result and does not stop the others.
func (l *Labels) Export(ctx context.Context, userID string, progress chan<- ProgressUpdate, opts ExportOpts) (*ExportResult, error) {
	format, err := formatter.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("spotlabel_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultConcurrency
	}

	labels, err := l.labels.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{
		Format:          format,
		OutputDirectory: opts.OutputDir,
		Total:           len(labels),
		Results:         make([]LabelExportResult, 0, len(labels)),
	}

	jobs := make(chan *models.Label, len(labels))
	results := make(chan LabelExportResult, len(labels))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go l.exportWorker(ctx, &wg, jobs, results, format, opts.OutputDir)
	}

	for _, label := range labels {
		jobs <- label
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Error == nil {
			result.Succeeded++
			sendProgress(progress, exportCompletedUpdate(completed, len(labels), res.LabelName, res.Path))
		} else {
			result.Failed++
			sendProgress(progress, exportFailedUpdate(completed, len(labels), res.LabelName, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportWorker exports labels from the jobs channel until it is drained or ctx is done.
func (l *Labels) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan *models.Label,
	results chan<- LabelExportResult,
	format, dir string,
) {
	defer wg.Done()

	for label := range jobs {
		if ctx.Err() != nil {
			return
		}
		results <- l.exportLabel(ctx, label, format, dir)
	}
}

func (l *Labels) exportLabel(ctx context.Context, label *models.Label, format, dir string) LabelExportResult {
	res := LabelExportResult{LabelID: label.ID, LabelName: label.Name}

	tracks, err := resolveTracks(ctx, l.tracks, label)
	if err != nil {
		res.Error = fmt.Errorf("failed to resolve tracks: %w", err)
		res.Message = res.Error.Error()
		return res
	}
	res.Tracks = len(tracks)

	path, err := formatter.WriteExport(&formatter.LabelExport{Label: label, Tracks: tracks}, dir, format)
	if err != nil {
		res.Error = err
		res.Message = err.Error()
		return res
	}
	res.Path = path
	return res
}
