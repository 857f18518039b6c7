package git

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ggit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/ghsync/internal/auth"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
)

const (
	// CommitMessage is used for every auto-commit created by Push.
	CommitMessage        = "ghsync: auto-commit changes"
	initialCommitMessage = "ghsync: initial commit"
	backupPrefix         = "backup_"
	backupTimeLayout     = "20060102_150405"
)

// Options configures a Repository.
type Options struct {
	RemoteName  string
	Auth        auth.Provider
	AuthorName  string
	AuthorEmail string
	Now         func() time.Time
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RemoteName == "" {
		o.RemoteName = "origin"
	}
	if o.Auth == nil {
		o.Auth = auth.NewManager("")
	}
	if o.AuthorName == "" {
		o.AuthorName = "ghsync"
	}
	if o.AuthorEmail == "" {
		o.AuthorEmail = "ghsync@localhost"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Repository is the handle on the local working tree and its one remote.
type Repository struct {
	path      string
	remoteURL string
	branch    string
	opts      Options
	log       *slog.Logger

	mu   sync.Mutex
	repo *ggit.Repository
}

// Open opens the repository at path, initializing it when none exists: the
// remote is registered and an empty initial commit is created on branch so
// HEAD always resolves.
func Open(path, remoteURL, branch string, opts Options) (*Repository, error) {
	opts = opts.withDefaults()
	r := &Repository{
		path:      path,
		remoteURL: remoteURL,
		branch:    branch,
		opts:      opts,
		log:       opts.Logger.With(logfields.Branch(branch), logfields.Path(path)),
	}

	repo, err := ggit.PlainOpen(path)
	switch {
	case errors.Is(err, ggit.ErrRepositoryNotExists):
		repo, err = r.initRepository()
		if err != nil {
			return nil, ClassifyGitError(err, "init")
		}
	case err != nil:
		return nil, ClassifyGitError(&RepositoryStateError{Op: "open", Path: path, Err: err}, "open")
	}
	r.repo = repo

	if err := r.ensureRemote(); err != nil {
		return nil, ClassifyGitError(err, "open")
	}
	if err := r.ensureBranch(); err != nil {
		return nil, ClassifyGitError(err, "open")
	}
	return r, nil
}

// OpenExisting opens the repository at path for read-only inspection. Unlike
// Open it never initializes, rewrites the remote, switches branch or commits,
// so it is safe on a working tree another process owns.
func OpenExisting(path, remoteURL, branch string, opts Options) (*Repository, error) {
	opts = opts.withDefaults()
	repo, err := ggit.PlainOpen(path)
	if err != nil {
		return nil, ClassifyGitError(&RepositoryStateError{Op: "open", Path: path, Err: err}, "open")
	}
	return &Repository{
		path:      path,
		remoteURL: remoteURL,
		branch:    branch,
		opts:      opts,
		log:       opts.Logger.With(logfields.Branch(branch), logfields.Path(path)),
		repo:      repo,
	}, nil
}

// Path returns the working tree root.
func (r *Repository) Path() string { return r.path }

// Branch returns the configured branch name.
func (r *Repository) Branch() string { return r.branch }

// RemoteURL returns the configured remote URL.
func (r *Repository) RemoteURL() string { return r.remoteURL }

// Head returns the commit HEAD points at.
func (r *Repository) Head() (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, &RepositoryStateError{Op: "head", Path: r.path, Err: err}
	}
	return ref.Hash(), nil
}

func (r *Repository) initRepository() (*ggit.Repository, error) {
	if err := os.MkdirAll(r.path, 0o750); err != nil {
		return nil, &RepositoryStateError{Op: "init", Path: r.path, Err: err}
	}
	repo, err := ggit.PlainInitWithOptions(r.path, &ggit.PlainInitOptions{
		InitOptions: ggit.InitOptions{DefaultBranch: r.branchRef()},
	})
	if err != nil {
		return nil, &RepositoryStateError{Op: "init", Path: r.path, Err: err}
	}
	if err := r.createInitialCommit(repo); err != nil {
		return nil, err
	}
	r.log.Info("Initialized repository")
	return repo, nil
}

func (r *Repository) createInitialCommit(repo *ggit.Repository) error {
	wt, err := repo.Worktree()
	if err != nil {
		return &RepositoryStateError{Op: "init", Path: r.path, Err: err}
	}
	_, err = wt.Commit(initialCommitMessage, &ggit.CommitOptions{
		Author:            r.signature(),
		AllowEmptyCommits: true,
	})
	if err != nil {
		return &RepositoryStateError{Op: "initial commit", Path: r.path, Err: err}
	}
	return nil
}

// ensureRemote registers the remote, replacing it when the URL changed.
func (r *Repository) ensureRemote() error {
	remote, err := r.repo.Remote(r.opts.RemoteName)
	switch {
	case errors.Is(err, ggit.ErrRemoteNotFound):
	case err != nil:
		return &RepositoryStateError{Op: "remote", Path: r.path, Err: err}
	default:
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == r.remoteURL {
			return nil
		}
		if err := r.repo.DeleteRemote(r.opts.RemoteName); err != nil {
			return &RepositoryStateError{Op: "remote", Path: r.path, Err: err}
		}
		r.log.Info("Remote URL changed", logfields.Remote(r.remoteURL))
	}

	if _, err := r.repo.CreateRemote(&ggitcfg.RemoteConfig{
		Name: r.opts.RemoteName,
		URLs: []string{r.remoteURL},
	}); err != nil {
		return &RepositoryStateError{Op: "remote", Path: r.path, Err: err}
	}
	return nil
}

// ensureBranch makes HEAD point at the configured branch.
func (r *Repository) ensureBranch() error {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Unborn HEAD (empty repository created outside ghsync).
		if err := r.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, r.branchRef())); err != nil {
			return &RepositoryStateError{Op: "checkout", Path: r.path, Err: err}
		}
		return r.createInitialCommit(r.repo)
	}
	if err != nil {
		return &RepositoryStateError{Op: "head", Path: r.path, Err: err}
	}
	if head.Name() == r.branchRef() {
		return nil
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return &RepositoryStateError{Op: "checkout", Path: r.path, Err: err}
	}
	_, refErr := r.repo.Reference(r.branchRef(), false)
	create := errors.Is(refErr, plumbing.ErrReferenceNotFound)
	if err := wt.Checkout(&ggit.CheckoutOptions{Branch: r.branchRef(), Create: create, Keep: true}); err != nil {
		return &RepositoryStateError{Op: "checkout", Path: r.path, Err: fmt.Errorf("switch to %s: %w", r.branch, err)}
	}
	r.log.Info("Switched branch", slog.String("from", head.Name().Short()))
	return nil
}

func (r *Repository) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(r.branch)
}

func (r *Repository) trackingRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(r.opts.RemoteName, r.branch)
}

func (r *Repository) signature() *object.Signature {
	return &object.Signature{Name: r.opts.AuthorName, Email: r.opts.AuthorEmail, When: r.opts.Now()}
}

func shortHash(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()[:8]
}
