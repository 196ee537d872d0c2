package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchCookieFile loads path and keeps watching it until ctx is done. Each
// time the file's contents change the cookie is reinstalled and onChange is
// called with it, so the caller can re-resolve the identity and rebind.
//
// The parent directory is watched rather than the file, so editors that
// replace the file on save are followed.
func (p *Provider) WatchCookieFile(ctx context.Context, path string, onChange func(cookie string)) error {
	current, err := p.LoadCookieFile(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create cookie file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("resolve cookie file path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	p.logger.Debug("Watching cookie file", "path", abs)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Cookie file watcher stopped", "path", abs)
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cookie, err := p.readCookieFile(abs)
				if err != nil {
					p.logger.Warn("Failed to reload cookie file", "path", abs, "error", err)
					continue
				}
				// A truncate-then-write shows up as an empty file first.
				if cookie == "" || cookie == current {
					continue
				}
				current = cookie
				p.backend.SetCookie(cookie)
				p.logger.Info("Session cookie changed", "path", abs)
				if onChange != nil {
					onChange(cookie)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Error("Cookie file watcher error", "error", err)
			}
		}
	}()
	return nil
}
