package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/antibyte/stuck/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// settle groups the burst of events an editor produces for one save.
const settle = 100 * time.Millisecond

func cmdWatch(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintf(stderr, "usage: %s watch <source_file>\n", appName)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watchFile(ctx, args[0], stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSourceRead
	}
	return exitOK
}

// watchFile runs path, then runs it again each time it is saved, until ctx
// is done. Runs read from an empty input.
func watchFile(ctx context.Context, path string, stdout, stderr io.Writer) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file instead of writing it, so the directory
	// is watched and events are filtered by name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	rerun := func() {
		source, err := readSource(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return
		}
		_ = interpret(ctx, source, strings.NewReader(""), stdout, stderr)
	}

	rerun()

	timer := time.NewTimer(settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug(logger.AreaGeneral, "Watch event %s", event)
			timer.Reset(settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn(logger.AreaGeneral, "Watcher error: %v", err)

		case <-timer.C:
			fmt.Fprintf(stdout, "--- %s changed ---\n", path)
			rerun()
		}
	}
}
