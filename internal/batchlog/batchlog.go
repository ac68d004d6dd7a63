// Package batchlog implements the token-versioned, append-only batch chain
// (C3): the daemon's core data structure, and the only place that owns the
// coarse mutex spec §5 requires around appends, freezes, resyncs, and
// ref-counting.
package batchlog

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/anthropic/fsmonitor-daemon/internal/token"
)

// batch is one closed or open interval of changes (spec §3.2). paths is a
// set, not a multiset: duplicate appends within a batch collapse to one
// entry. prev points toward the older, already-closed batch it follows.
type batch struct {
	paths map[string]struct{}
	seq   uint64
	prev  *batch
}

// generation is the daemon's current Token Data (spec §3.3): one
// token_id's worth of chain. A resync never mutates a generation in
// place -- it replaces the Log's pointer with a brand new one, so any
// query already iterating an old generation keeps a consistent view of it
// for as long as its own stack frame holds the pointer (Go's GC retains
// the chain until that reference drops, which is this implementation's
// expression of spec §3.3's "may not be freed while ref_count is non-zero").
type generation struct {
	id         string
	open       *batch // mutable, accepts new paths; nil until the first Append since the last freeze
	closedHead *batch // most recently closed batch; new opens link after this
	tail       *batch // oldest closed batch in the chain
	refCount   int32
}

// newGeneration seeds the chain with an empty baseline batch at seq 0, the
// same seq the boot/resync token reports as its head. Without this, the
// first real Append would also land at seq 0 (closedHead == nil) and a
// query presenting that boot token would exclude it via the strict
// "b.seq <= clientToken.SequenceNr" stop condition in Query, losing the
// first batch of changes entirely.
func newGeneration(id string) *generation {
	baseline := &batch{paths: make(map[string]struct{}), seq: 0}
	return &generation{id: id, closedHead: baseline, tail: baseline}
}

// headSeqLocked returns the sequence_nr a client should see as "current
// head" right now: the open batch's seq if one exists, else the most
// recently closed batch's seq, else 0 for a brand new, untouched chain.
func (g *generation) headSeqLocked() uint64 {
	switch {
	case g.open != nil:
		return g.open.seq
	case g.closedHead != nil:
		return g.closedHead.seq
	default:
		return 0
	}
}

// freezeLocked closes the open batch, if any, establishing the boundary
// between what a client has just been told about and what comes next.
func (g *generation) freezeLocked() {
	if g.open == nil {
		return
	}
	g.closedHead = g.open
	if g.tail == nil {
		g.tail = g.open
	}
	g.open = nil
}

// appendLocked inserts relPath into the open batch, lazily allocating one
// whose seq continues from the most recently closed batch's seq + 1. Since
// every generation starts with the seq-0 baseline batch, the first batch
// opened under a fresh token_id gets seq 1.
func (g *generation) appendLocked(relPath string) {
	if g.open == nil {
		var seq uint64
		if g.closedHead != nil {
			seq = g.closedHead.seq + 1
		}
		g.open = &batch{paths: make(map[string]struct{}), seq: seq, prev: g.closedHead}
	}
	g.open.paths[relPath] = struct{}{}
}

// Log is the append-only, token-versioned batch chain.
type Log struct {
	mu  sync.Mutex
	gen *generation
	log *zap.Logger
}

// New creates a Log with a freshly minted token_id, satisfying spec §4.3
// resync trigger 1 ("Daemon start").
func New(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Log{log: log}
	l.gen = newGeneration(token.NewID())
	log.Info("batch log initialized", zap.String("token_id", l.gen.id))
	return l
}

// Append records that relPath changed under the current token_id. relPath
// must already be worktree-relative, forward-slash form, and must already
// have been classified as reportable -- the log itself does not classify.
func (l *Log) Append(relPath string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen.appendLocked(relPath)
}

// CurrentToken reports the current (token_id, head_sequence_nr) without
// freezing the head or taking a chain reference. Used by status reporting.
func (l *Log) CurrentToken() token.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	return token.Token{ID: l.gen.id, SequenceNr: l.gen.headSeqLocked()}
}

// Resync mints a fresh token_id and detaches the current chain, per spec
// §4.3. The old generation is not mutated; any query still iterating it
// (holding its own pointer from an earlier Query call) is unaffected.
func (l *Log) Resync() token.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen = newGeneration(token.NewID())
	l.log.Info("resync", zap.String("new_token_id", l.gen.id))
	return token.Token{ID: l.gen.id, SequenceNr: 0}
}

// Query answers "what changed since clientToken" per spec §4.3:
//
//   - If clientToken.ID doesn't match the current token_id, the response
//     is trivial: an empty path list plus the current token, telling the
//     client to assume everything changed.
//   - Otherwise the chain is walked from head toward tail, unioning paths
//     from every batch whose sequence_nr is strictly greater than the
//     client's, stopping at the first batch at or below it.
//
// Either way, the current head is frozen, establishing the boundary for
// the next batch.
func (l *Log) Query(clientToken token.Token) (newToken token.Token, paths []string) {
	l.mu.Lock()

	gen := l.gen
	match := clientToken.ID == gen.id
	gen.freezeLocked()
	newToken = token.Token{ID: gen.id, SequenceNr: gen.headSeqLocked()}

	if !match {
		l.mu.Unlock()
		l.log.Debug("query: stale token_id, trivial response",
			zap.String("client_token_id", clientToken.ID),
			zap.String("current_token_id", gen.id))
		return newToken, nil
	}

	gen.refCount++
	l.mu.Unlock()

	seen := make(map[string]struct{})
	for b := gen.closedHead; b != nil; b = b.prev {
		if b.seq <= clientToken.SequenceNr {
			break
		}
		for p := range b.paths {
			seen[p] = struct{}{}
		}
	}

	l.mu.Lock()
	gen.refCount--
	l.mu.Unlock()

	paths = make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return newToken, paths
}

// RefCount reports the current generation's in-flight-query count, for
// tests and status reporting.
func (l *Log) RefCount() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen.refCount
}
