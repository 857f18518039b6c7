package git

import (
	"strings"
	"time"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// CommitInfo is a one-line view of a commit for the `logs` command.
type CommitInfo struct {
	Hash    string
	Author  string
	When    time.Time
	Message string
}

// History returns up to n commits reachable from HEAD, newest first.
func (r *Repository) History(n int) ([]CommitInfo, error) {
	if n <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.repo.Head()
	if err != nil {
		return nil, r.stateErr("log", err)
	}
	iter, err := r.repo.Log(&ggit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, r.stateErr("log", err)
	}
	defer iter.Close()

	out := make([]CommitInfo, 0, n)
	err = iter.ForEach(func(c *object.Commit) error {
		if len(out) >= n {
			return storer.ErrStop
		}
		msg, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
		out = append(out, CommitInfo{
			Hash:    c.Hash.String()[:8],
			Author:  c.Author.Name,
			When:    c.Author.When,
			Message: msg,
		})
		return nil
	})
	if err != nil {
		return nil, r.stateErr("log", err)
	}
	return out, nil
}
