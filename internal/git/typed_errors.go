package git

import (
	"errors"
	"fmt"
	"strings"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Typed git errors enabling structured classification without string parsing upstream.
type AuthError struct {
	Op, URL string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error for %s: %v", e.Op, e.URL, e.Err)
}
func (e *AuthError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Op, URL string
	Err     error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found %s: %v", e.Op, e.URL, e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

type NetworkError struct {
	Op, URL string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s network error for %s: %v", e.Op, e.URL, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteRejectedError is returned when the remote refuses a push, typically
// because the branch moved (non-fast-forward).
type RemoteRejectedError struct {
	URL, Branch string
	Err         error
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("push rejected by %s@%s: %v", e.URL, e.Branch, e.Err)
}
func (e *RemoteRejectedError) Unwrap() error { return e.Err }

// RepositoryStateError covers local repository problems (corrupt refs,
// missing objects, worktree failures).
type RepositoryStateError struct {
	Op, Path string
	Err      error
}

func (e *RepositoryStateError) Error() string {
	return fmt.Sprintf("%s failed in %s: %v", e.Op, e.Path, e.Err)
}
func (e *RepositoryStateError) Unwrap() error { return e.Err }

// classifyRemoteError wraps transport failures into typed variants when possible.
func classifyRemoteError(op, url, branch string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return &AuthError{Op: op, URL: url, Err: err}
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return &NotFoundError{Op: op, URL: url, Err: err}
	case errors.Is(err, ggit.ErrNonFastForwardUpdate):
		return &RemoteRejectedError{URL: url, Branch: branch, Err: err}
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "unable to authenticate") || strings.Contains(l, "permission denied") ||
		strings.Contains(l, "authentication") || strings.Contains(l, "ssh-agent unavailable"):
		return &AuthError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist") ||
		strings.Contains(l, "does not appear to be a git repository"):
		return &NotFoundError{Op: op, URL: url, Err: err}
	case strings.Contains(l, "rejected") || strings.Contains(l, "non-fast-forward"):
		return &RemoteRejectedError{URL: url, Branch: branch, Err: err}
	default:
		// Anything else from the transport is treated as transient.
		return &NetworkError{Op: op, URL: url, Err: err}
	}
}
