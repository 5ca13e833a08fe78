package displays

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchFile reloads repo from the YAML file at path whenever the file
// changes, then calls onReload. A file that fails to load leaves the
// previous contents in place. WatchFile blocks until ctx is done.
func WatchFile(ctx context.Context, path string, repo *MemoryRepository, onReload func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	name := filepath.Clean(path)
	log.Info().Str("path", name).Msg("watching displays file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			fresh, err := LoadMemoryRepository(path)
			if err != nil {
				log.Error().Err(err).Str("path", name).Msg("failed to reload displays file, keeping previous content")
				continue
			}
			if fresh.Len() == 0 {
				// Usually a truncate seen before the write that follows it
				log.Warn().Str("path", name).Msg("displays file is empty, keeping previous content")
				continue
			}
			repo.Replace(fresh)
			log.Info().Str("path", name).Msg("displays file reloaded")

			if onReload != nil {
				onReload(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("file watcher error")
		}
	}
}
