package identity

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"rynx/agent/internal/logger"
	"rynx/agent/internal/store"
)

// Watch monitors the identity sidecar file while the agent runs. Editing or
// deleting it does not change the device's identity; the file is rewritten
// from the database copy and the event is logged as a security event.
// Returns a stop function.
func Watch(st *store.Store, sidecarPath string) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(sidecarPath)); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != sidecarPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				logger.Warnf("identity file tampered (%s), restoring from local store", ev.Op)
				id, err := st.LoadIdentity()
				if err != nil || id == nil {
					logger.Errorf("cannot restore identity file: %v", err)
					continue
				}
				if err := writeSidecar(sidecarPath, id.Code); err != nil {
					logger.Errorf("rewrite identity file: %v", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Errorf("identity watcher: %v", err)
			}
		}
	}()

	return func() {
		w.Close()
		<-done
	}, nil
}
