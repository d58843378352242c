package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher watches the config file itself plus every listener's TLS/htpasswd
// file for changes and invokes onChange when any of them are written.
// SIGHUP remains the primary reload trigger (see signal_unix.go); this is
// the supplementary file-level trigger the fsnotify dependency exists for.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func()
	log      logrus.FieldLogger
	done     chan struct{}
}

// NewWatcher creates a Watcher over configPath and every credential file
// referenced by cfg's listeners.
func NewWatcher(configPath string, cfg *Config, onChange func(), log logrus.FieldLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{fsw: fsw, onChange: onChange, log: log, done: make(chan struct{})}
	w.addIfSet(configPath)
	for _, l := range cfg.Listeners {
		w.addIfSet(l.HTTPSKeyFilename)
		w.addIfSet(l.HTTPSCertFilename)
		w.addIfSet(l.HTTPSClientsCAFilename)
		w.addIfSet(l.HtpasswdFilename)
	}

	go w.run()
	return w, nil
}

func (w *Watcher) addIfSet(path string) {
	if path == "" {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.log.WithError(err).WithField("path", path).Warn("could not watch config-related file")
	}
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.log.WithField("file", event.Name).Info("watched file changed, triggering reload")
				w.onChange()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("config watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
