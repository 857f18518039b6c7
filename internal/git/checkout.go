package git

import (
	"errors"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// localChanges returns every path that differs from HEAD in the index or the
// working tree, untracked files included.
func (r *Repository) localChanges() (map[string]struct{}, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, r.stateErr("worktree", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, r.stateErr("status", err)
	}
	dirty := make(map[string]struct{}, len(status))
	for p, st := range status {
		if st.Staging != ggit.Unmodified || st.Worktree != ggit.Unmodified {
			dirty[p] = struct{}{}
		}
	}
	return dirty, nil
}

// advance moves the branch and index from one commit to another and rewrites
// only the working tree paths that differ between the two commits. Paths in
// keep and untracked files standing where the target adds a file are left as
// they are; they show up as local changes afterwards. It returns how many
// changed paths were left alone.
func (r *Repository) advance(from, to plumbing.Hash, keep map[string]struct{}) (int, error) {
	fromTree, err := r.commitTree(from)
	if err != nil {
		return 0, err
	}
	toTree, err := r.commitTree(to)
	if err != nil {
		return 0, err
	}
	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return 0, r.stateErr("diff", err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return 0, r.stateErr("worktree", err)
	}
	// Mixed: branch ref and index follow the target, the working tree is untouched.
	if err := wt.Reset(&ggit.ResetOptions{Commit: to, Mode: ggit.MixedReset}); err != nil {
		return 0, r.stateErr("reset", err)
	}

	kept := 0
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return kept, r.stateErr("diff", err)
		}
		name := ch.To.Name
		if action == merkletrie.Delete {
			name = ch.From.Name
		}
		if _, ok := keep[name]; ok {
			kept++
			continue
		}

		switch action {
		case merkletrie.Delete:
			if err := wt.Filesystem.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
				return kept, r.stateErr("checkout", err)
			}
		case merkletrie.Insert, merkletrie.Modify:
			if ch.To.TreeEntry.Mode == filemode.Submodule {
				continue
			}
			if action == merkletrie.Insert {
				if _, err := wt.Filesystem.Lstat(name); err == nil {
					kept++
					continue
				}
			}
			file, err := toTree.File(name)
			if err != nil {
				return kept, r.stateErr("checkout", err)
			}
			if err := writeTreeFile(wt.Filesystem, file); err != nil {
				return kept, r.stateErr("checkout", err)
			}
		}
	}
	return kept, nil
}

func (r *Repository) commitTree(h plumbing.Hash) (*object.Tree, error) {
	commit, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, r.stateErr("checkout", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, r.stateErr("checkout", err)
	}
	return tree, nil
}

func writeTreeFile(fs billy.Filesystem, f *object.File) error {
	mode, err := f.Mode.ToOSFileMode()
	if err != nil {
		return err
	}
	if err := fs.Remove(f.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if dir := path.Dir(f.Name); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if mode&os.ModeSymlink != 0 {
		target, err := f.Contents()
		if err != nil {
			return err
		}
		return fs.Symlink(target, f.Name)
	}

	src, err := f.Reader()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := fs.OpenFile(f.Name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
