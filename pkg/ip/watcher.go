package ip

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind describes a descriptor change.
type ChangeKind int

const (
	ChangeModified ChangeKind = iota
	ChangeRemoved
	ChangeAdded
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeAdded:
		return "added"
	default:
		return "unknown"
	}
}

// Change is one descriptor created, edited or deleted under a watched root.
type Change struct {
	Kind ChangeKind
	File string
}

// Watcher reports changes to descriptor files under a set of roots. New
// subdirectories are watched as they appear.
type Watcher struct {
	Roots   []string
	Changes <-chan Change

	changes  chan Change
	done     chan struct{}
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher over roots. Nothing is watched until Start.
func NewWatcher(roots ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ch := make(chan Change, 16)
	return &Watcher{
		Roots:    roots,
		Changes:  ch,
		changes:  ch,
		done:     make(chan struct{}),
		debounce: 100 * time.Millisecond,
		watcher:  fw,
	}, nil
}

// Start registers every directory under the roots and begins delivering changes.
func (w *Watcher) Start() error {
	for _, root := range w.Roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	go w.loop()
	return nil
}

// Stop closes the watcher. Changes is closed once pending events are flushed.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.changes)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(p)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	type event struct {
		kind ChangeKind
		at   time.Time
	}
	pending := make(map[string]event)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				for file, e := range pending {
					w.changes <- Change{Kind: e.kind, File: file}
				}
				return
			}
			if ev.Has(fsnotify.Create) && dirExists(ev.Name) {
				_ = w.addTree(ev.Name)
				continue
			}
			if filepath.Base(ev.Name) != DescriptorFileName {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				pending[ev.Name] = event{kind: ChangeRemoved, at: time.Now()}
			case ev.Has(fsnotify.Create):
				pending[ev.Name] = event{kind: ChangeAdded, at: time.Now()}
			case ev.Has(fsnotify.Write):
				kind := ChangeModified
				if prev, ok := pending[ev.Name]; ok && prev.kind == ChangeAdded {
					kind = ChangeAdded
				}
				pending[ev.Name] = event{kind: kind, at: time.Now()}
			}

		case <-ticker.C:
			now := time.Now()
			for file, e := range pending {
				if now.Sub(e.at) >= w.debounce {
					w.changes <- Change{Kind: e.kind, File: file}
					delete(pending, file)
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
