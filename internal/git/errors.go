package git

import (
	"errors"

	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// ClassifyGitError translates typed git errors into ClassifiedErrors. The typed
// error stays reachable through errors.As.
func ClassifyGitError(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := ferrors.AsClassified(err); ok {
		return err
	}

	var (
		authErr     *AuthError
		notFoundErr *NotFoundError
		netErr      *NetworkError
		rejectedErr *RemoteRejectedError
		stateErr    *RepositoryStateError
	)

	var b *ferrors.ErrorBuilder
	switch {
	case errors.As(err, &authErr):
		b = ferrors.WrapError(err, ferrors.CategoryAuth, "remote rejected credentials").UserAction().
			WithContext("url", authErr.URL)
	case errors.As(err, &notFoundErr):
		b = ferrors.WrapError(err, ferrors.CategoryGit, "remote repository not found").UserAction().
			WithContext("url", notFoundErr.URL)
	case errors.As(err, &rejectedErr):
		b = ferrors.GitError("push rejected by remote").WithCause(err).
			WithContext("url", rejectedErr.URL).
			WithContext("branch", rejectedErr.Branch)
	case errors.As(err, &netErr):
		b = ferrors.WrapError(err, ferrors.CategoryNetwork, "remote unreachable").Retryable().
			WithContext("url", netErr.URL)
	case errors.As(err, &stateErr):
		b = ferrors.GitError("repository state error").WithCause(err).WithRetry(ferrors.RetryNever).
			WithContext("path", stateErr.Path)
	default:
		b = ferrors.GitError("git operation failed").WithCause(err)
	}
	return b.WithContext("op", op).Build()
}
