package git

import (
	"errors"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// isAncestor reports whether a is reachable from b (a == b counts).
func isAncestor(repo *ggit.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

// reachable returns every commit reachable from start, start included.
func reachable(repo *ggit.Repository, start plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	seen := map[plumbing.Hash]struct{}{}
	if start.IsZero() {
		return seen, nil
	}
	queue := []plumbing.Hash{start}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return nil, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return seen, nil
}

// AheadBehind counts commits on HEAD missing from the remote tracking branch
// (ahead) and commits on the tracking branch missing from HEAD (behind). It
// uses the last fetched state; call Fetch first for fresh numbers.
func (r *Repository) AheadBehind() (ahead, behind int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.repo.Head()
	if err != nil {
		return 0, 0, r.stateErr("ahead/behind", err)
	}
	remote := plumbing.ZeroHash
	remoteRef, err := r.repo.Reference(r.trackingRef(), true)
	switch {
	case err == nil:
		remote = remoteRef.Hash()
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return 0, 0, r.stateErr("ahead/behind", err)
	}

	local, err := reachable(r.repo, head.Hash())
	if err != nil {
		return 0, 0, r.stateErr("ahead/behind", err)
	}
	upstream, err := reachable(r.repo, remote)
	if err != nil {
		return 0, 0, r.stateErr("ahead/behind", err)
	}
	for h := range local {
		if _, ok := upstream[h]; !ok {
			ahead++
		}
	}
	for h := range upstream {
		if _, ok := local[h]; !ok {
			behind++
		}
	}
	return ahead, behind, nil
}

// CountBehind returns the number of commits reachable from the remote
// tracking branch but not from HEAD.
func (r *Repository) CountBehind() (int, error) {
	_, behind, err := r.AheadBehind()
	return behind, err
}
