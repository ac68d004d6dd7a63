// Package classify implements the path classifier (C1): a pure function
// from an absolute path to a path-kind tag, used by the listener to decide
// whether a raw kernel event is reportable, private metadata churn, a
// cookie, or outside the watched cone entirely.
package classify

import (
	"os"
	"path/filepath"
	"strings"
)

// Kind is one of the path-kind tags from spec §3.4.
type Kind int

const (
	WorkdirPath Kind = iota
	DotGit
	InsideDotGit
	InsideDotGitWithCookiePrefix
	GitDir
	InsideGitDir
	InsideGitDirWithCookiePrefix
	OutsideCone
)

func (k Kind) String() string {
	switch k {
	case WorkdirPath:
		return "WORKDIR_PATH"
	case DotGit:
		return "DOT_GIT"
	case InsideDotGit:
		return "INSIDE_DOT_GIT"
	case InsideDotGitWithCookiePrefix:
		return "INSIDE_DOT_GIT_WITH_COOKIE_PREFIX"
	case GitDir:
		return "GITDIR"
	case InsideGitDir:
		return "INSIDE_GITDIR"
	case InsideGitDirWithCookiePrefix:
		return "INSIDE_GITDIR_WITH_COOKIE_PREFIX"
	default:
		return "OUTSIDE_CONE"
	}
}

// MetadataDirName is the name of the repository's metadata directory
// within the worktree root.
const MetadataDirName = ".git"

// CookiePrefix identifies a cookie file: a short-lived file the daemon
// creates inside the metadata directory solely to detect event drain.
const CookiePrefix = ".fsmonitor-daemon-"

// Classifier classifies absolute paths against a worktree root and, when
// the metadata directory lives outside the worktree, a second gitdir root.
// It holds no mutable state; it's a pure function wrapped in a struct so
// callers don't have to thread two root strings through every call site.
type Classifier struct {
	worktreeRoot string
	gitDirRoot   string // empty if the metadata dir is a child of worktreeRoot
}

// New creates a Classifier for a worktree root and an optional separate
// gitdir root. Pass "" for gitDirRoot when .git is an ordinary subdirectory
// of the worktree (the common case); spec §4.6 step 2 decides this at boot.
func New(worktreeRoot, gitDirRoot string) *Classifier {
	c := &Classifier{worktreeRoot: filepath.Clean(worktreeRoot)}
	if gitDirRoot != "" {
		c.gitDirRoot = filepath.Clean(gitDirRoot)
	}
	return c
}

// Classify returns the path kind of abs, plus the path relative to the
// worktree root in forward-slash form when the kind is WorkdirPath (the
// only kind the Listener ever needs a relative path for).
func (c *Classifier) Classify(abs string) (kind Kind, rel string) {
	if kind, rel, ok := classifyAgainstRoot(c.worktreeRoot, abs, false); ok {
		return kind, rel
	}
	if c.gitDirRoot != "" {
		if kind, rel, ok := classifyAgainstRoot(c.gitDirRoot, abs, true); ok {
			return kind, rel
		}
	}
	return OutsideCone, ""
}

// classifyAgainstRoot implements spec §4.1's five-step algorithm against a
// single root. gitdirVariant selects the GITDIR/INSIDE_GITDIR/... tags
// instead of DOT_GIT/INSIDE_DOT_GIT/... when root is the external gitdir.
// ok is false only when abs is OUTSIDE_CONE relative to this particular
// root, so the caller can fall through to trying the other root.
func classifyAgainstRoot(root, abs string, gitdirVariant bool) (kind Kind, rel string, ok bool) {
	root = normalizeForCompare(root)
	cmp := normalizeForCompare(abs)

	if !hasPathPrefix(cmp, root) {
		return OutsideCone, "", false
	}

	rest := abs[len(root):]
	if rest == "" {
		if gitdirVariant {
			return GitDir, "", true
		}
		return WorkdirPath, "", true
	}
	if rest[0] != os.PathSeparator && rest[0] != '/' {
		// Root matched as a string prefix but not as a path-component
		// boundary (e.g. root "/w" against "/work"). Accidental prefix.
		return OutsideCone, "", false
	}
	rest = strings.TrimLeft(rest, string(os.PathSeparator)+"/")

	if gitdirVariant {
		// The external gitdir root *is* the metadata directory: every
		// path under it is INSIDE_GITDIR (or a cookie), never WORKDIR_PATH.
		if hasCookiePrefix(rest) {
			return InsideGitDirWithCookiePrefix, "", true
		}
		return InsideGitDir, "", true
	}

	if !strings.HasPrefix(rest, MetadataDirName) {
		return WorkdirPath, toSlash(rest), true
	}

	afterDotGit := rest[len(MetadataDirName):]
	if afterDotGit == "" {
		return DotGit, "", true
	}
	if afterDotGit[0] != os.PathSeparator && afterDotGit[0] != '/' {
		// e.g. ".gitignore", ".gitmodules" -- not the metadata dir itself.
		return WorkdirPath, toSlash(rest), true
	}
	inner := strings.TrimLeft(afterDotGit, string(os.PathSeparator)+"/")
	if hasCookiePrefix(inner) {
		return InsideDotGitWithCookiePrefix, "", true
	}
	return InsideDotGit, "", true
}

func hasCookiePrefix(rel string) bool {
	return strings.HasPrefix(rel, CookiePrefix)
}

func toSlash(p string) string {
	return filepath.ToSlash(p)
}

// normalizeForCompare applies the host platform's case/Unicode rules for
// path comparison. On case-insensitive filesystems (Windows, default
// macOS) paths are lower-cased before comparison; on Linux they are left
// as-is. This is a deliberately narrow slice of what a real
// platform-fidelity layer would do -- spec §4.1 names the requirement
// ("matching the host platform") without mandating a specific Unicode
// normalization form; no Unicode normalization is applied here.
func normalizeForCompare(p string) string {
	if caseInsensitiveFS {
		return strings.ToLower(p)
	}
	return p
}

func hasPathPrefix(p, prefix string) bool {
	return strings.HasPrefix(p, prefix)
}
