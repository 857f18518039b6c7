package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// SetupTestGitRepo initializes a temporary git repository for testing.
// Returns the repository, its worktree, and the absolute path to the temporary directory.
func SetupTestGitRepo(t *testing.T) (*git.Repository, *git.Worktree, string) {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := git.PlainInit(tempDir, false)
	require.NoError(t, err, "init repo")

	w, err := repo.Worktree()
	require.NoError(t, err, "worktree")

	return repo, w, tempDir
}

// Remote is an on-disk bare repository plus a seed clone used to advance it
// from "another machine".
type Remote struct {
	Branch   string
	BarePath string
	SeedPath string
	Seed     *git.Repository
}

// NewRemote creates an empty bare repository and a seed working copy whose
// origin points at it.
func NewRemote(t *testing.T, branch string) *Remote {
	t.Helper()
	tmp := t.TempDir()

	barePath := filepath.Join(tmp, "remote.git")
	_, err := git.PlainInitWithOptions(barePath, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
		Bare:        true,
	})
	require.NoError(t, err, "init bare")

	seedPath := filepath.Join(tmp, "seed")
	seed, err := git.PlainInitWithOptions(seedPath, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
	})
	require.NoError(t, err, "init seed")
	_, err = seed.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{barePath}})
	require.NoError(t, err, "create remote")

	return &Remote{Branch: branch, BarePath: barePath, SeedPath: seedPath, Seed: seed}
}

// Commit writes filename in the seed working copy, commits and pushes it.
func (r *Remote) Commit(t *testing.T, filename, content, msg string) plumbing.Hash {
	t.Helper()
	hash := CommitFile(t, r.Seed, r.SeedPath, filename, content, msg)
	r.Push(t)
	return hash
}

// Push force-pushes the seed branch to the bare repository.
func (r *Remote) Push(t *testing.T) {
	t.Helper()
	ref := plumbing.NewBranchReferenceName(r.Branch)
	err := r.Seed.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:%s", ref, ref))},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		require.NoError(t, err, "push seed")
	}
}

// Tip returns the commit the bare repository's branch points at, or the zero
// hash when the branch does not exist.
func (r *Remote) Tip(t *testing.T) plumbing.Hash {
	t.Helper()
	bare, err := git.PlainOpen(r.BarePath)
	require.NoError(t, err, "open bare")
	ref, err := bare.Reference(plumbing.NewBranchReferenceName(r.Branch), true)
	if err == plumbing.ErrReferenceNotFound {
		return plumbing.ZeroHash
	}
	require.NoError(t, err, "bare ref")
	return ref.Hash()
}

// CommitFiles lists the paths changed by commit hash in the bare repository
// relative to its first parent.
func (r *Remote) CommitFiles(t *testing.T, hash plumbing.Hash) []string {
	t.Helper()
	bare, err := git.PlainOpen(r.BarePath)
	require.NoError(t, err, "open bare")
	commit, err := bare.CommitObject(hash)
	require.NoError(t, err, "commit object")
	stats, err := commit.Stats()
	require.NoError(t, err, "commit stats")
	files := make([]string, 0, len(stats))
	for _, s := range stats {
		files = append(files, s.Name)
	}
	return files
}

// CommitFile writes filename under repoPath, stages it and commits.
func CommitFile(t *testing.T, repo *git.Repository, repoPath, filename, content, msg string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err, "worktree")
	full := filepath.Join(repoPath, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	_, err = wt.Add(filename)
	require.NoError(t, err, "add")
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err, "commit")
	return hash
}
