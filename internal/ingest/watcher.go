// Package ingest imports chat transcripts dropped into a watched directory,
// so other tools can hand conversations to Valora by writing files.
package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yorbuachi72/valora/internal/chatimport"
	"github.com/yorbuachi72/valora/internal/parser"
)

// Source is the origin label stamped on memories imported from the drop
// directory.
const Source = "file-crawler"

// importedSuffix marks files that have already been processed.
const importedSuffix = ".imported"

// settleDelay debounces write events so a file is imported once, after the
// producer finishes writing it.
const settleDelay = 200 * time.Millisecond

// ImportedCallback is called after a file has been imported. count is the
// number of memories created from it.
type ImportedCallback func(path string, count int)

// Watch starts an fsnotify watcher on dir and imports every .txt, .md, and
// .json file dropped there until ctx is cancelled. Processed files are
// renamed with an ".imported" suffix so they are not picked up again.
//
// Plain-text transcripts go through the marker-based parser with format
// auto-detection; .md and .json files go through the corresponding
// structured importer. A file that fails to import is logged and left in
// place.
func Watch(ctx context.Context, importer *chatimport.Service, dir string, logger *slog.Logger, cb ImportedCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("ingest: started", slog.String("dir", dir))

	pending := make(map[string]struct{})
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	scheduleSettle := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("ingest: stopped")
			return nil

		case <-settleCh:
			for path := range pending {
				delete(pending, path)
				importFile(ctx, importer, path, logger, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !supportedFile(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			scheduleSettle()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("ingest: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func supportedFile(path string) bool {
	if strings.HasSuffix(path, importedSuffix) {
		return false
	}
	switch filepath.Ext(path) {
	case ".txt", ".md", ".json":
		return true
	}
	return false
}

func importFile(ctx context.Context, importer *chatimport.Service, path string, logger *slog.Logger, cb ImportedCallback) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("ingest: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	content := string(data)

	var created int
	switch filepath.Ext(path) {
	case ".json":
		memories, importErr := importer.ImportFromFormat(ctx, content, "json", Source, "")
		if importErr != nil {
			logger.Warn("ingest: import failed", slog.String("path", path), slog.String("error", importErr.Error()))
			return
		}
		created = len(memories)
	case ".md":
		memories, importErr := importer.ImportFromFormat(ctx, content, "markdown", Source, "")
		if importErr != nil {
			logger.Warn("ingest: import failed", slog.String("path", path), slog.String("error", importErr.Error()))
			return
		}
		created = len(memories)
	default:
		conv := parser.Parse(content, "", "")
		conv.Source = Source
		memories, importErr := importer.ImportChat(ctx, conv)
		if importErr != nil {
			logger.Warn("ingest: import failed", slog.String("path", path), slog.String("error", importErr.Error()))
			return
		}
		created = len(memories)
	}

	if err := os.Rename(path, path+importedSuffix); err != nil {
		logger.Warn("ingest: mark imported failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	logger.Info("ingest: imported", slog.String("path", path), slog.Int("memories", created))
	if cb != nil {
		cb(path, created)
	}
}
