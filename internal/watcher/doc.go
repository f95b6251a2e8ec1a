// Package watcher keeps a knowledge base in sync with directories on disk.
//
// DirWatcher uses fsnotify and falls back to polling where fsnotify cannot
// start (some network mounts and container volumes). Events are debounced
// so an editor's save burst becomes one event per file, and only files
// with ingestible extensions are reported.
//
// Usage:
//
//	w, err := watcher.NewDirWatcher(watcher.Options{Extensions: chunk.SupportedExtensions()})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, "/path/to/docs") }()
//	watcher.Dispatch(ctx, w.Events(), handler)
package watcher
