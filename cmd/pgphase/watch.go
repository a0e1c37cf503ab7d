package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// debounce collapses editor save bursts into one run.
const debounce = 200 * time.Millisecond

// watchFile calls run once, then again after every change to path, until
// ctx is done. The parent directory is watched so editors that replace the
// file on save keep being followed.
func watchFile(ctx context.Context, path string, log *slog.Logger, run func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return alerr.Wrap(alerr.EInternalError, err, "file watcher failed")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return alerr.Wrap(alerr.ErrConfig, err, "invalid schema path").With("file", path)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return alerr.Wrap(alerr.ErrConfig, err, "cannot watch schema directory").With("file", path)
	}

	report := func() {
		if err := run(); err != nil {
			log.Error("run failed", "error", err)
		}
	}
	report()
	log.Info("watching for changes", "file", path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			report()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		}
	}
}
