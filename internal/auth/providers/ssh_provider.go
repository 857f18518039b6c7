package providers

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

const defaultSSHUser = "git"

func sshUser(ep *transport.Endpoint) string {
	if ep != nil && ep.User != "" {
		return ep.User
	}
	return defaultSSHUser
}

// SSHKeyProvider authenticates with a private key file.
type SSHKeyProvider struct {
	KeyPath string
}

// NewSSHKeyProvider creates a key-file provider.
func NewSSHKeyProvider(keyPath string) *SSHKeyProvider {
	return &SSHKeyProvider{KeyPath: keyPath}
}

func (p *SSHKeyProvider) Type() Type { return TypeKey }

// CreateAuth loads the key; passphrase-protected keys are not supported.
func (p *SSHKeyProvider) CreateAuth(ep *transport.Endpoint) (transport.AuthMethod, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}
	publicKeys, err := ssh.NewPublicKeysFromFile(sshUser(ep), p.KeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key from %s: %w", p.KeyPath, err)
	}
	return publicKeys, nil
}

// ValidateConfig checks the key file exists.
func (p *SSHKeyProvider) ValidateConfig() error {
	if p.KeyPath == "" {
		return fmt.Errorf("SSH key path is empty")
	}
	if _, err := os.Stat(p.KeyPath); os.IsNotExist(err) {
		return fmt.Errorf("SSH key file does not exist: %s", p.KeyPath)
	}
	return nil
}

func (p *SSHKeyProvider) Name() string { return "SSHKeyProvider" }

// SSHAgentProvider authenticates with identities held by the running ssh-agent.
type SSHAgentProvider struct{}

func NewSSHAgentProvider() *SSHAgentProvider { return &SSHAgentProvider{} }

func (p *SSHAgentProvider) Type() Type { return TypeAgent }

func (p *SSHAgentProvider) CreateAuth(ep *transport.Endpoint) (transport.AuthMethod, error) {
	auth, err := ssh.NewSSHAgentAuth(sshUser(ep))
	if err != nil {
		return nil, fmt.Errorf("ssh-agent unavailable (is SSH_AUTH_SOCK set?): %w", err)
	}
	return auth, nil
}

func (p *SSHAgentProvider) Name() string { return "SSHAgentProvider" }
