package batchlog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthropic/fsmonitor-daemon/internal/token"
)

// TestScenarioS2StaleToken covers spec §8 S2: a query against a token_id
// the daemon has never seen gets a trivial response.
func TestScenarioS2StaleToken(t *testing.T) {
	l := New(nil)

	newTok, paths := l.Query(token.Token{ID: "old", SequenceNr: 0})
	require.Empty(t, paths)
	require.NotEqual(t, "old", newTok.ID)
	require.Equal(t, l.CurrentToken().ID, newTok.ID)
}

// TestScenarioS3BasicChangeDetection covers spec §8 S3.
func TestScenarioS3BasicChangeDetection(t *testing.T) {
	l := New(nil)

	t0, _ := l.Query(token.Token{ID: "nonexistent"})

	l.Append("a")
	l.Append("b")
	l.Append("c")

	t1, paths := l.Query(t0)
	sort.Strings(paths)
	require.Equal(t, []string{"a", "b", "c"}, paths)
	require.Equal(t, t0.ID, t1.ID)
}

// TestScenarioS4IdempotentRequery covers spec §8 S4 and invariant 5.
func TestScenarioS4IdempotentRequery(t *testing.T) {
	l := New(nil)

	t0, _ := l.Query(token.Token{ID: "nonexistent"})
	l.Append("a")
	t1, paths := l.Query(t0)
	require.Equal(t, []string{"a"}, paths)

	// No filesystem activity between t1 and this second query.
	t2, paths2 := l.Query(t1)
	require.Empty(t, paths2)
	require.Equal(t, t1.ID, t2.ID)
	require.GreaterOrEqual(t, t2.SequenceNr, t1.SequenceNr)
}

// TestScenarioS5ResyncOnOverflow covers spec §8 S5.
func TestScenarioS5ResyncOnOverflow(t *testing.T) {
	l := New(nil)

	t0, _ := l.Query(token.Token{ID: "nonexistent"})

	_ = l.Resync() // simulates the listener reacting to an overflow event

	newTok, paths := l.Query(t0)
	require.Empty(t, paths)
	require.NotEqual(t, t0.ID, newTok.ID)
}

// TestRoundTrip covers invariant 6: a change occurring strictly between
// two queries on the same token_id lineage appears in the later query.
func TestRoundTrip(t *testing.T) {
	l := New(nil)

	q1, _ := l.Query(token.Token{ID: "nonexistent"})
	l.Append("changed/file.go")
	q2, paths := l.Query(q1)

	require.Contains(t, paths, "changed/file.go")
	require.Equal(t, q1.ID, q2.ID)
}

// TestSequenceNrStrictlyDecreasingTowardTail covers invariant 2.
func TestSequenceNrStrictlyDecreasingTowardTail(t *testing.T) {
	l := New(nil)

	q, _ := l.Query(token.Token{ID: "nonexistent"})
	l.Append("a")
	q, _ = l.Query(q)
	l.Append("b")
	q, _ = l.Query(q)
	l.Append("c")
	_, _ = l.Query(q)

	var seqs []uint64
	for b := l.gen.closedHead; b != nil; b = b.prev {
		seqs = append(seqs, b.seq)
	}
	for i := 1; i < len(seqs); i++ {
		require.Less(t, seqs[i], seqs[i-1], "sequence numbers must decrease toward tail")
	}
}

// TestAppendDedup covers the "duplicate paths are deduplicated" edge case.
func TestAppendDedup(t *testing.T) {
	l := New(nil)

	q0, _ := l.Query(token.Token{ID: "nonexistent"})
	l.Append("dup")
	l.Append("dup")
	l.Append("dup")

	_, paths := l.Query(q0)
	require.Equal(t, []string{"dup"}, paths)
}

// TestEmptyChainMatchingHeadSeq covers the edge case where a query arrives
// with a matching token_id and sequence_nr equal to the current head's.
func TestEmptyChainMatchingHeadSeq(t *testing.T) {
	l := New(nil)

	q0, _ := l.Query(token.Token{ID: "nonexistent"})
	// No appends happened, so q0.SequenceNr already equals head's.
	_, paths := l.Query(q0)
	require.Empty(t, paths)
}
