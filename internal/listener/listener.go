// Package listener implements the Listener (C4): the single thread that
// consumes raw kernel filesystem events, classifies each path via
// internal/classify, short-circuits cookie hits via internal/cookie, and
// appends reportable changes to the batch log.
//
// spec §1 treats the platform kernel event source (inotify / FSEvents /
// ReadDirectoryChangesW) as an external collaborator specified only by
// contract -- that contract is the Source interface below. The concrete
// adapter, grounded on the teacher's internal/watcher package, wraps
// fsnotify, which itself multiplexes onto whichever of those three
// platform backends is available.
package listener

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/anthropic/fsmonitor-daemon/internal/batchlog"
	"github.com/anthropic/fsmonitor-daemon/internal/classify"
	"github.com/anthropic/fsmonitor-daemon/internal/cookie"
)

// EventKind is the kernel-event-source contract spec §4.4 requires: every
// record is one of these six kinds, delivered in causal order per path
// (no ordering guarantee across unrelated paths).
type EventKind int

const (
	Created EventKind = iota
	Modified
	Deleted
	Renamed
	Overflow
	ErrorKind
)

// Event is one raw record from the kernel event source.
type Event struct {
	Path string
	Kind EventKind
}

// Listener owns the single event-consuming thread described in spec §4.4.
type Listener struct {
	worktreeRoot string
	gitDirRoot   string // "" if not a separate root

	classifier *classify.Classifier
	log        *batchlog.Log
	cookies    *cookie.Registry
	logger     *zap.Logger

	fsw *fsnotify.Watcher
}

// New creates a Listener for the given watch roots. gitDirRoot should be
// "" when the metadata directory is an ordinary child of worktreeRoot
// (spec §4.6 step 2 decides this at boot).
func New(worktreeRoot, gitDirRoot string, log *batchlog.Log, cookies *cookie.Registry, zlog *zap.Logger) *Listener {
	if zlog == nil {
		zlog = zap.NewNop()
	}
	return &Listener{
		worktreeRoot: worktreeRoot,
		gitDirRoot:   gitDirRoot,
		classifier:   classify.New(worktreeRoot, gitDirRoot),
		log:          log,
		cookies:      cookies,
		logger:       zlog,
	}
}

// Run starts the platform watcher, recursively adds every directory under
// both watch roots, and blocks processing events until ctx is cancelled.
// It never returns a non-nil error for a clean, context-triggered stop.
func (l *Listener) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.fsw = fsw
	defer fsw.Close()

	if err := l.addRecursive(l.worktreeRoot); err != nil {
		l.logger.Warn("walk worktree root failed", zap.String("root", l.worktreeRoot), zap.Error(err))
	}
	if l.gitDirRoot != "" {
		if err := l.addRecursive(l.gitDirRoot); err != nil {
			l.logger.Warn("walk gitdir root failed", zap.String("root", l.gitDirRoot), zap.Error(err))
		}
	}

	l.logger.Info("listener started",
		zap.String("worktree", l.worktreeRoot),
		zap.String("gitdir", l.gitDirRoot))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			l.handleEvent(toEvent(ev))

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("kernel event source overflow", zap.Error(err))
			l.handleEvent(Event{Kind: Overflow})
		}
	}
}

// toEvent translates a raw fsnotify record into the kernel-event-source
// contract type (spec §4.4), the way the teacher's watcher.mapEventType
// translates into its own internal event type.
func toEvent(ev fsnotify.Event) Event {
	return Event{Path: ev.Name, Kind: mapEventKind(ev)}
}

func mapEventKind(ev fsnotify.Event) EventKind {
	switch {
	case ev.Has(fsnotify.Create):
		return Created
	case ev.Has(fsnotify.Write):
		return Modified
	case ev.Has(fsnotify.Remove):
		return Deleted
	case ev.Has(fsnotify.Rename):
		return Renamed
	default:
		// chmod-only and similar: carries no content change worth
		// reporting, but still a valid per-record kind.
		return ErrorKind
	}
}

// handleEvent implements spec §4.4's per-record dispatch table.
func (l *Listener) handleEvent(ev Event) {
	if ev.Kind == Overflow {
		l.log.Resync()
		return
	}

	if ev.Kind == Created {
		if info, err := os.Stat(ev.Path); err == nil && info.IsDir() {
			_ = l.addRecursive(ev.Path)
		}
	}

	kind, rel := l.classifier.Classify(ev.Path)

	switch kind {
	case classify.OutsideCone:
		return

	case classify.InsideDotGitWithCookiePrefix, classify.InsideGitDirWithCookiePrefix:
		l.cookies.ObserveAndUnregister(filepath.Base(ev.Path))
		return

	case classify.InsideDotGit, classify.InsideGitDir:
		return

	case classify.DotGit, classify.GitDir:
		l.logger.Warn("metadata root replaced, forcing resync", zap.String("path", ev.Path))
		l.log.Resync()
		return

	case classify.WorkdirPath:
		if !isReportableKind(ev.Kind) {
			return
		}
		l.log.Append(rel)
	}
}

// isReportableKind excludes chmod-only and other non-content records
// (spec §4.4's per-record table only lists created/modified/deleted/
// renamed as reportable).
func isReportableKind(k EventKind) bool {
	return k == Created || k == Modified || k == Deleted || k == Renamed
}

// addRecursive walks root and adds every directory to the platform
// watcher; fsnotify does not watch recursively on its own.
func (l *Listener) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // inaccessible entry: skip, don't abort the walk
		}
		if !d.IsDir() {
			return nil
		}
		_ = l.fsw.Add(path)
		return nil
	})
}
