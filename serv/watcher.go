package serv

import (
	"context"

	"github.com/bizfeed/docq/queryfile"
	"github.com/fsnotify/fsnotify"
)

const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// initQueryWatcher reloads the query files whenever the query directory
// changes. Production deployments keep the files loaded at startup.
func (s *Service) initQueryWatcher(ctx context.Context) error {
	if s.conf.Production {
		return nil
	}
	dir := s.conf.AbsolutePath(s.conf.Query.Path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close() //nolint:errcheck
		s.log.Debugf("not watching query files: %s", err)
		return nil
	}

	go func() {
		defer w.Close() //nolint:errcheck
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&reloadOps == 0 {
					continue
				}
				if err := s.reloadQueries(); err != nil {
					s.log.Warnf("query files not reloaded: %s", err)
				} else {
					s.log.Infof("query files reloaded: %s changed", ev.Name)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warnf("query watcher: %s", err)
			}
		}
	}()
	return nil
}

// reloadQueries swaps in a fresh set of query files. On error the current
// set stays in place.
func (s *Service) reloadQueries() error {
	q, err := queryfile.LoadDir(s.fs, s.conf.AbsolutePath(s.conf.Query.Path))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.queries = q
	s.mu.Unlock()
	return nil
}
