// Package token implements the opaque (token_id, sequence_nr) coordinate
// that clients use to ask "what changed since T".
package token

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Scheme is the fixed prefix of every token string: "builtin:<token_id>:<sequence_nr>".
const Scheme = "builtin"

// testTokenEnv, when set, forces deterministic token_id generation so that
// tests can assert on exact token values.
const testTokenEnv = "FSMONITOR_TOKEN_TEST"

var testCounter atomic.Uint64

// Token is the opaque versioning coordinate handed between daemon and client.
// token_id carries no ordering semantics; equality is the only observable
// relation on it. sequence_nr is monotonically non-decreasing within a
// token_id and resets to 0 whenever token_id changes.
type Token struct {
	ID         string
	SequenceNr uint64
}

// String renders the token in its wire form, "builtin:<token_id>:<sequence_nr>".
func (t Token) String() string {
	return fmt.Sprintf("%s:%s:%d", Scheme, t.ID, t.SequenceNr)
}

// Parse decodes a wire-form token string. An error is returned for anything
// that doesn't have exactly the three colon-separated fields with the
// "builtin" scheme and a numeric sequence number; internal/ipc answers such
// a request with an "unknown command" error response.
func Parse(s string) (Token, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("malformed token %q", s)
	}
	if parts[0] != Scheme {
		return Token{}, fmt.Errorf("unknown token scheme %q", parts[0])
	}
	if parts[1] == "" {
		return Token{}, fmt.Errorf("empty token_id in %q", s)
	}
	seq, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("malformed sequence_nr in %q: %w", s, err)
	}
	return Token{ID: parts[1], SequenceNr: seq}, nil
}

// NewID mints a fresh token_id. In normal operation this is a random UUID
// followed by the process ID and the current time in nanoseconds;
// when FSMONITOR_TOKEN_TEST is set in the environment it instead returns a
// deterministic "test_NNNNNNNN" form so test suites can assert on exact
// token values across resyncs.
func NewID() string {
	if name := os.Getenv(testTokenEnv); name != "" {
		return testID(name)
	}
	return fmt.Sprintf("%s-%d-%d", uuid.NewString(), os.Getpid(), time.Now().UnixNano())
}

// testID returns the deterministic test_NNNNNNNN form. The counter is
// per-process, not per-name: the env var only toggles the deterministic
// format, matching spec §3.1's "test_NNNNNNNN form when a test-mode
// configuration is set".
func testID(_ string) string {
	n := testCounter.Add(1)
	return fmt.Sprintf("test_%08d", n)
}
