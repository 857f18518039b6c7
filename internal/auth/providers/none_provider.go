package providers

import "github.com/go-git/go-git/v5/plumbing/transport"

// NoneProvider is used for endpoints that need no credentials (local paths).
type NoneProvider struct{}

func NewNoneProvider() *NoneProvider { return &NoneProvider{} }

func (p *NoneProvider) Type() Type { return TypeNone }

func (p *NoneProvider) CreateAuth(_ *transport.Endpoint) (transport.AuthMethod, error) {
	return nil, nil
}

func (p *NoneProvider) Name() string { return "NoneProvider" }
