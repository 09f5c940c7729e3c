package results

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/batchscribe/internal/speech"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Store is the slice of the job client the materializer needs: one listing
// call plus per-artifact streaming downloads.
type Store interface {
	ListOutputs(ctx context.Context) ([]speech.OutputEntry, error)
	DownloadOutput(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

type Options struct {
	DestinationDir string
	NoProgress     bool
	Logger         *zap.Logger
}

// Materialize downloads every artifact a completed job produced into the
// destination directory, one at a time in listing order. Sequential on
// purpose: it bounds memory and connections and keeps completion order
// deterministic. The first failed artifact aborts the rest; its partial file
// is removed before the error propagates.
func Materialize(ctx context.Context, store Store, opts Options) ([]string, error) {
	if opts.DestinationDir == "" {
		return nil, fmt.Errorf("%w: destination directory is required", speech.ErrDownload)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(opts.DestinationDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create destination directory: %w", speech.ErrDownload, err)
	}

	entries, err := store.ListOutputs(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		opts.Logger.Warn("job produced no output artifacts")
		return nil, nil
	}

	saved := make([]string, 0, len(entries))
	for _, entry := range entries {
		destination := filepath.Join(opts.DestinationDir, filepath.Base(entry.Name))
		if err := materializeOne(ctx, store, entry.Name, destination, opts); err != nil {
			return saved, err
		}
		opts.Logger.Info("artifact saved", zap.String("name", entry.Name), zap.String("path", destination))
		saved = append(saved, destination)
	}

	return saved, nil
}

func materializeOne(ctx context.Context, store Store, name, destination string, opts Options) error {
	body, length, err := store.DownloadOutput(ctx, name)
	if err != nil {
		return err
	}
	defer body.Close()

	tempPath := destination + ".part"
	_ = os.Remove(tempPath)

	outFile, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", speech.ErrDownload, err)
	}

	success := false
	defer func() {
		_ = outFile.Close()
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	var writer io.Writer = outFile
	var bar *progressbar.ProgressBar
	if shouldRenderProgress(opts.NoProgress, length) {
		bar = progressbar.NewOptions64(
			length,
			progressbar.OptionSetDescription(name),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		writer = io.MultiWriter(outFile, bar)
	}

	if _, err := io.Copy(writer, body); err != nil {
		return fmt.Errorf("%w: download %s: %w", speech.ErrDownload, name, err)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if err := outFile.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp file: %w", speech.ErrDownload, err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", speech.ErrDownload, err)
	}

	if err := os.Rename(tempPath, destination); err != nil {
		return fmt.Errorf("%w: move temp file into destination: %w", speech.ErrDownload, err)
	}

	success = true
	return nil
}

func shouldRenderProgress(noProgress bool, contentLength int64) bool {
	if noProgress {
		return false
	}
	if contentLength <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
