package auth

import (
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/ghsync/internal/auth/providers"
	"git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// Provider returns the credentials to use for a remote URL.
type Provider interface {
	AuthFor(url string) (transport.AuthMethod, error)
}

// Manager selects a provider per endpoint: SSH endpoints use the configured
// SSH method (key file when a path is set, the agent otherwise), everything
// else (local paths, file://) uses no authentication.
type Manager struct {
	registry *providers.AuthProviderRegistry
	sshType  providers.Type
}

// NewManager creates a manager. An empty keyPath selects the SSH agent.
func NewManager(keyPath string) *Manager {
	registry := providers.NewAuthProviderRegistry()
	sshType := providers.TypeAgent
	if keyPath != "" {
		registry.Register(providers.NewSSHKeyProvider(keyPath))
		sshType = providers.TypeKey
	} else {
		registry.Register(providers.NewSSHAgentProvider())
	}
	return &Manager{registry: registry, sshType: sshType}
}

// Method returns the SSH method in use.
func (m *Manager) Method() providers.Type { return m.sshType }

// AuthFor implements Provider.
func (m *Manager) AuthFor(url string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid remote URL").
			WithContext("url", url).
			Build()
	}

	authType := providers.TypeNone
	if ep.Protocol == "ssh" {
		authType = m.sshType
	}

	method, err := m.registry.CreateAuth(authType, ep)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryAuth, "no usable SSH identity").
			UserAction().
			WithContext("method", string(authType)).
			Build()
	}
	return method, nil
}
