// Package provision resolves the remote repository a fresh installation syncs
// to. Creating repositories on a hosting service is left to the user; the
// provisioner only derives the URL and checks that it is reachable.
package provision

import (
	"context"
	"errors"
	"strings"

	ggit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/ghsync/internal/auth"
	"git.home.luguber.info/inful/ghsync/internal/config"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// DefaultName is the repository name used when `start` gets no --name.
const DefaultName = "ghsync"

// Provisioner returns the remote URL for the named repository.
type Provisioner interface {
	EnsureRepository(ctx context.Context, name string) (string, error)
}

// TemplateProvisioner expands "{name}" in Template and verifies the result
// answers a remote listing.
type TemplateProvisioner struct {
	Template string
	Auth     auth.Provider
	// SkipCheck disables the reachability check.
	SkipCheck bool
}

func (p *TemplateProvisioner) EnsureRepository(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(p.Template) == "" {
		return "", ferrors.ConfigError("no remote configured; set remote_url with `ghsync config --remote` or remote_template in the config file").
			UserAction().Build()
	}
	if name == "" {
		name = DefaultName
	}
	url := strings.ReplaceAll(p.Template, "{name}", name)
	if !config.IsSSHURL(url) {
		return "", ferrors.ValidationError("remote_template must produce an SSH URL").
			WithContext("remote_url", url).Build()
	}
	if p.SkipCheck {
		return url, nil
	}
	if err := checkReachable(ctx, url, p.Auth); err != nil {
		return "", err
	}
	return url, nil
}

func checkReachable(ctx context.Context, url string, provider auth.Provider) error {
	var method transport.AuthMethod
	if provider != nil {
		var err error
		if method, err = provider.AuthFor(url); err != nil {
			return err
		}
	}
	remote := ggit.NewRemote(memory.NewStorage(), &ggitcfg.RemoteConfig{Name: "origin", URLs: []string{url}})
	_, err := remote.ListContext(ctx, &ggit.ListOptions{Auth: method})
	switch {
	case err == nil, errors.Is(err, transport.ErrEmptyRemoteRepository):
		return nil
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return ferrors.WrapError(err, ferrors.CategoryConfig, "remote repository does not exist; create it first").
			UserAction().WithContext("remote_url", url).Build()
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return ferrors.WrapError(err, ferrors.CategoryAuth, "remote repository rejected the SSH identity").
			UserAction().WithContext("remote_url", url).Build()
	default:
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "remote repository not reachable").
			Retryable().WithContext("remote_url", url).Build()
	}
}

// Static always returns URL. Used by tests and by callers that already know
// the remote.
type Static struct {
	URL string
	Err error
}

func (s Static) EnsureRepository(context.Context, string) (string, error) {
	return s.URL, s.Err
}
