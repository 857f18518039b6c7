package git

import (
	"context"
	"errors"
	"fmt"

	ggit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"

	"git.home.luguber.info/inful/ghsync/internal/logfields"
)

// PushResult reports the outcome of Push.
type PushResult struct {
	Committed bool
	Commit    plumbing.Hash // the auto-commit, when Committed
	Pushed    bool          // false when the remote was already up to date
}

// Push commits all uncommitted changes (if any) and pushes the branch.
func (r *Repository) Push(ctx context.Context) (PushResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.push(ctx)
}

func (r *Repository) push(ctx context.Context) (PushResult, error) {
	var res PushResult
	hash, committed, err := r.commitAll()
	if err != nil {
		return res, err
	}
	res.Committed, res.Commit = committed, hash

	method, err := r.opts.Auth.AuthFor(r.remoteURL)
	if err != nil {
		return res, err
	}
	refSpec := ggitcfg.RefSpec(fmt.Sprintf("%s:%s", r.branchRef(), r.branchRef()))
	err = r.repo.PushContext(ctx, &ggit.PushOptions{
		RemoteName: r.opts.RemoteName,
		RefSpecs:   []ggitcfg.RefSpec{refSpec},
		Auth:       method,
	})
	switch {
	case err == nil:
		res.Pushed = true
		r.log.InfoContext(ctx, "Pushed branch", logfields.Remote(r.remoteURL), logfields.Commit(shortHash(hash)))
	case errors.Is(err, ggit.NoErrAlreadyUpToDate):
		r.log.DebugContext(ctx, "Remote already up to date", logfields.Remote(r.remoteURL))
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		return res, ClassifyGitError(classifyRemoteError("push", r.remoteURL, r.branch, err), "push")
	}
	return res, nil
}

// commitAll stages every change, deletions included, and commits them on top
// of HEAD. It reports false when the working tree is clean.
func (r *Repository) commitAll() (plumbing.Hash, bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, false, r.stateErr("worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, false, r.stateErr("status", err)
	}
	if status.IsClean() {
		return plumbing.ZeroHash, false, nil
	}

	for path, st := range status {
		switch {
		case st.Worktree == ggit.Deleted:
			if _, err := wt.Remove(path); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return plumbing.ZeroHash, false, r.stateErr("stage", err)
			}
		case st.Worktree != ggit.Unmodified:
			if _, err := wt.Add(path); err != nil {
				return plumbing.ZeroHash, false, r.stateErr("stage", err)
			}
		}
	}

	hash, err := wt.Commit(CommitMessage, &ggit.CommitOptions{Author: r.signature()})
	if errors.Is(err, ggit.ErrEmptyCommit) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, r.stateErr("commit", err)
	}
	r.log.Info("Committed local changes", logfields.Commit(shortHash(hash)), logfields.Pending(len(status)))
	return hash, true, nil
}
