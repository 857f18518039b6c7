package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ggit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/ghsync/internal/logfields"
)

// PullOutcome describes what Pull did to the local branch.
type PullOutcome string

const (
	PullUpToDate    PullOutcome = "up_to_date"
	PullFastForward PullOutcome = "fast_forward"
	PullReset       PullOutcome = "reset"
)

// PullResult reports the outcome of Pull.
type PullResult struct {
	Outcome      PullOutcome
	From         plumbing.Hash
	To           plumbing.Hash
	BackupBranch string        // set when Outcome is PullReset
	Snapshot     plumbing.Hash // auto-commit of uncommitted work saved on the backup branch
}

// Fetch updates the remote tracking branch. A remote without the branch
// (for example a freshly created, empty repository) is not an error; the
// tracking ref is dropped instead.
func (r *Repository) Fetch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetch(ctx)
}

func (r *Repository) fetch(ctx context.Context) error {
	method, err := r.opts.Auth.AuthFor(r.remoteURL)
	if err != nil {
		return err
	}

	refSpec := ggitcfg.RefSpec(fmt.Sprintf("+%s:%s", r.branchRef(), r.trackingRef()))
	err = r.repo.FetchContext(ctx, &ggit.FetchOptions{
		RemoteName: r.opts.RemoteName,
		RefSpecs:   []ggitcfg.RefSpec{refSpec},
		Auth:       method,
		Tags:       ggit.NoTags,
	})
	switch {
	case err == nil, errors.Is(err, ggit.NoErrAlreadyUpToDate):
		return nil
	case isMissingRemoteBranch(err):
		r.log.DebugContext(ctx, "Remote branch does not exist yet", logfields.Remote(r.remoteURL))
		if rmErr := r.repo.Storer.RemoveReference(r.trackingRef()); rmErr != nil {
			return &RepositoryStateError{Op: "fetch", Path: r.path, Err: rmErr}
		}
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return ClassifyGitError(classifyRemoteError("fetch", r.remoteURL, r.branch, err), "fetch")
	}
}

func isMissingRemoteBranch(err error) bool {
	return errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, ggit.NoMatchingRefSpecError{})
}

// Pull fetches and integrates the remote branch. When local and remote
// history have diverged the remote wins: local HEAD is saved on a backup
// branch and the branch is hard reset to the remote tip.
func (r *Repository) Pull(ctx context.Context) (PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fetch(ctx); err != nil {
		return PullResult{}, err
	}
	return r.integrate()
}

// Integrate applies the already-fetched remote tracking branch to the local
// branch without contacting the remote.
func (r *Repository) Integrate() (PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.integrate()
}

func (r *Repository) integrate() (PullResult, error) {
	remoteRef, err := r.repo.Reference(r.trackingRef(), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return PullResult{Outcome: PullUpToDate}, nil
	}
	if err != nil {
		return PullResult{}, r.stateErr("pull", err)
	}
	head, err := r.repo.Head()
	if err != nil {
		return PullResult{}, r.stateErr("pull", err)
	}

	res := PullResult{From: head.Hash(), To: remoteRef.Hash()}
	if head.Hash() == remoteRef.Hash() {
		res.Outcome = PullUpToDate
		return res, nil
	}

	contained, err := isAncestor(r.repo, remoteRef.Hash(), head.Hash())
	if err != nil {
		return PullResult{}, r.stateErr("pull", err)
	}
	if contained {
		res.Outcome = PullUpToDate
		res.To = head.Hash()
		return res, nil
	}

	fastForward, err := isAncestor(r.repo, head.Hash(), remoteRef.Hash())
	if err != nil {
		return PullResult{}, r.stateErr("pull", err)
	}
	if fastForward {
		// Uncommitted work stays in the working tree and is pushed by the
		// next Push.
		dirty, err := r.localChanges()
		if err != nil {
			return PullResult{}, err
		}
		kept, err := r.advance(head.Hash(), remoteRef.Hash(), dirty)
		if err != nil {
			return PullResult{}, err
		}
		res.Outcome = PullFastForward
		r.log.Info("Fast-forwarded to remote",
			logfields.Commit(shortHash(res.To)),
			logfields.Outcome(string(res.Outcome)),
			slog.Int("local_changes", len(dirty)),
			slog.Int("kept_local", kept))
		return res, nil
	}

	// The branch is about to leave local history behind: uncommitted work is
	// committed first so it ends up in the backup branch.
	snapshot, committed, err := r.commitAll()
	if err != nil {
		return PullResult{}, err
	}
	if committed {
		res.Snapshot = snapshot
		res.From = snapshot
	}

	backup, err := r.createBackupBranch(res.From)
	if err != nil {
		return PullResult{}, err
	}
	if _, err := r.advance(res.From, remoteRef.Hash(), nil); err != nil {
		return PullResult{}, err
	}
	res.Outcome = PullReset
	res.BackupBranch = backup
	r.log.Warn("Local history diverged from remote; reset to remote after saving backup branch",
		logfields.BackupBranch(backup),
		logfields.Commit(shortHash(res.To)),
		logfields.Outcome(string(res.Outcome)))
	return res, nil
}

// createBackupBranch creates backup_<timestamp> at hash, appending _N until
// the name is unused.
func (r *Repository) createBackupBranch(hash plumbing.Hash) (string, error) {
	base := backupPrefix + r.opts.Now().Format(backupTimeLayout)
	name := base
	for n := 2; ; n++ {
		_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), false)
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			break
		}
		if err != nil {
			return "", r.stateErr("backup branch", err)
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return "", r.stateErr("backup branch", err)
	}
	return name, nil
}

func (r *Repository) stateErr(op string, err error) error {
	return ClassifyGitError(&RepositoryStateError{Op: op, Path: r.path, Err: err}, op)
}
