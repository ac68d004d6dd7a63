// Package repo resolves the two roots the daemon watches: the worktree
// root and, when the metadata directory is not an ordinary child of it, a
// separate gitdir root (spec §4.6 step 2). It also rejects bare
// repositories up front, per spec §1's "bare repositories (explicitly
// rejected)" non-goal.
//
// Grounded on the teacher's internal/gitint package, which wraps go-git
// the same way; here we use go-git purely for repository topology, not
// for log/diff/blame.
package repo

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// ErrBareRepository is returned by Resolve when path names a bare
// repository; fsmonitor-daemon has nothing to watch in that case.
var ErrBareRepository = errors.New("fsmonitor-daemon: bare repositories are not supported")

// Roots holds the two absolute paths the daemon may need to watch.
type Roots struct {
	// Worktree is the absolute path to the working tree root.
	Worktree string
	// GitDir is the absolute path to the metadata directory. It is always
	// set, even when it's the ordinary "<worktree>/.git" case.
	GitDir string
	// Separate is true when GitDir is not a direct child of Worktree
	// (linked worktrees, GIT_DIR overrides, submodules with gitdir files),
	// meaning the daemon must watch two roots instead of one.
	Separate bool
}

// Resolve opens the repository at path (or an ancestor of it, the way
// `git rev-parse --show-toplevel` would) and returns its watch roots.
// It fails if the repository is bare.
func Resolve(path string) (Roots, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Roots{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	gitRepo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Roots{}, fmt.Errorf("open repository at %s: %w", abs, err)
	}

	wt, err := gitRepo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return Roots{}, ErrBareRepository
		}
		return Roots{}, fmt.Errorf("resolve worktree for %s: %w", abs, err)
	}
	worktreeRoot := filepath.Clean(wt.Filesystem.Root())

	gitDirRoot := worktreeRoot
	if fss, ok := gitRepo.Storer.(*filesystem.Storage); ok {
		gitDirRoot = filepath.Clean(fss.Filesystem().Root())
	}

	return Roots{
		Worktree: worktreeRoot,
		GitDir:   gitDirRoot,
		Separate: gitDirRoot != filepath.Join(worktreeRoot, ".git"),
	}, nil
}
