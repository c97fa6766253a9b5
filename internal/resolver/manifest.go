package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/flight/internal/logging"
)

// Manifest is the on-disk description of client references. The file only
// carries module metadata; server-side implementations (if any) are
// registered in code.
type Manifest struct {
	Components []ManifestEntry `yaml:"components"`
}

// ManifestEntry describes one client reference.
type ManifestEntry struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Path   string   `yaml:"path"`
	Export string   `yaml:"export"`
	Chunks []string `yaml:"chunks"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	for i, entry := range m.Components {
		if entry.ID == "" {
			if entry.Path == "" {
				return nil, fmt.Errorf("manifest %s: entry %d has neither id nor path", path, i)
			}
			m.Components[i].ID = entry.Path + "#" + entry.Export
		}
	}

	return &m, nil
}

// Apply registers every manifest entry, preserving any implementation a
// previous registration already attached to the same id.
func (r *Registry) Apply(m *Manifest) {
	for _, entry := range m.Components {
		component := &ClientComponent{
			ID:         entry.ID,
			Name:       entry.Name,
			Path:       entry.Path,
			ExportName: entry.Export,
			Chunks:     entry.Chunks,
		}
		if existing, ok := r.Resolve(entry.ID); ok && existing.Impl != nil {
			component.Impl = existing.Impl
		}
		r.Register(component)
	}
}

// ManifestWatcher keeps a registry in sync with a manifest file.
type ManifestWatcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	done     chan struct{}
}

// WatchManifest loads the manifest into the registry and reloads it
// whenever the file changes. The watcher stops when ctx is cancelled or
// Close is called.
func WatchManifest(ctx context.Context, path string, registry *Registry, logger logging.Logger) (*ManifestWatcher, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	manifest, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	registry.Apply(manifest)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating manifest watcher: %w", err)
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching manifest directory: %w", err)
	}

	mw := &ManifestWatcher{
		path:     path,
		registry: registry,
		watcher:  watcher,
		logger:   logger.WithComponent("resolver"),
		done:     make(chan struct{}),
	}

	go mw.run(ctx)

	return mw, nil
}

func (mw *ManifestWatcher) run(ctx context.Context) {
	defer close(mw.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(mw.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			manifest, err := LoadManifest(mw.path)
			if err != nil {
				mw.logger.Warn(ctx, err, "manifest reload failed", "path", mw.path)
				continue
			}
			mw.registry.Apply(manifest)
			mw.logger.Info(ctx, "manifest reloaded",
				"path", mw.path,
				"components", len(manifest.Components),
			)
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Warn(ctx, err, "manifest watcher error", "path", mw.path)
		}
	}
}

// Close stops watching. It is safe to call multiple times.
func (mw *ManifestWatcher) Close() error {
	err := mw.watcher.Close()
	<-mw.done

	return err
}
