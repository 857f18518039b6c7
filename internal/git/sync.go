package git

import "context"

// SyncResult combines the pull and push halves of a Sync.
type SyncResult struct {
	Pull PullResult
	Push PushResult
}

// Sync pulls then pushes, returning the first failure. A failed pull skips
// the push.
func (r *Repository) Sync(ctx context.Context) (SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res SyncResult
	if err := r.fetch(ctx); err != nil {
		return res, err
	}
	pull, err := r.integrate()
	res.Pull = pull
	if err != nil {
		return res, err
	}
	push, err := r.push(ctx)
	res.Push = push
	return res, err
}
