package featureflag

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type fileConfig struct {
	Flags []Flag `mapstructure:"flags"`
}

// FileLoader reads flags from a YAML file into a MemoryStore and reloads
// them when the file changes. Invalid files are ignored on reload.
type FileLoader struct {
	path  string
	v     *viper.Viper
	store *MemoryStore
	log   *zap.Logger

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

func NewFileLoader(path string, store *MemoryStore, log *zap.Logger) *FileLoader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return &FileLoader{
		path:  path,
		v:     v,
		store: store,
		log:   log.Named("featureflag.loader"),
		done:  make(chan struct{}),
	}
}

// Load reads the file once and replaces the store content.
func (l *FileLoader) Load() error {
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read flag file: %w", err)
	}
	var cfg fileConfig
	if err := l.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode flag file: %w", err)
	}
	if len(cfg.Flags) == 0 {
		return errors.New("flag file has no flags")
	}
	return l.store.Replace(cfg.Flags)
}

// Watch reloads on writes to the file. The parent directory is watched so
// that atomic renames used by config mounts are seen.
func (l *FileLoader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	l.watcher = watcher

	target := filepath.Clean(l.path)
	go func() {
		defer close(l.done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := l.Load(); err != nil {
					l.log.Warn("flag reload failed, keeping previous flags", zap.String("file", ev.Name), zap.Error(err))
					continue
				}
				l.log.Info("flags reloaded", zap.String("file", ev.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Warn("flag watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (l *FileLoader) Close() error {
	var err error
	l.stopOnce.Do(func() {
		if l.watcher == nil {
			return
		}
		err = l.watcher.Close()
		<-l.done
	})
	return err
}
