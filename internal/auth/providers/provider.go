package providers

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Type names an authentication method.
type Type string

const (
	TypeNone  Type = "none"
	TypeAgent Type = "agent"
	TypeKey   Type = "key"
)

// AuthProvider produces transport credentials for a remote endpoint.
type AuthProvider interface {
	// Type returns the authentication type this provider handles.
	Type() Type

	// CreateAuth creates a transport.AuthMethod for the endpoint.
	// Returns nil, nil for no authentication (TypeNone).
	CreateAuth(ep *transport.Endpoint) (transport.AuthMethod, error)

	// Name returns a human-readable name for this provider (for logging/debugging).
	Name() string
}

// AuthProviderRegistry manages the collection of available auth providers.
type AuthProviderRegistry struct {
	providers map[Type]AuthProvider
}

// NewAuthProviderRegistry creates an empty registry with the none provider.
func NewAuthProviderRegistry() *AuthProviderRegistry {
	registry := &AuthProviderRegistry{
		providers: make(map[Type]AuthProvider),
	}
	registry.Register(NewNoneProvider())
	return registry
}

// Register adds a provider to the registry, replacing one of the same type.
func (r *AuthProviderRegistry) Register(provider AuthProvider) {
	r.providers[provider.Type()] = provider
}

// GetProvider returns the provider for the given auth type.
func (r *AuthProviderRegistry) GetProvider(authType Type) (AuthProvider, bool) {
	provider, exists := r.providers[authType]
	return provider, exists
}

// CreateAuth creates authentication using the provider registered for authType.
func (r *AuthProviderRegistry) CreateAuth(authType Type, ep *transport.Endpoint) (transport.AuthMethod, error) {
	provider, exists := r.GetProvider(authType)
	if !exists {
		return nil, &AuthError{Type: authType, Message: "unsupported authentication type"}
	}

	auth, err := provider.CreateAuth(ep)
	if err != nil {
		return nil, &AuthError{Type: authType, Message: "failed to create authentication", Cause: err}
	}
	return auth, nil
}

// AuthError represents an authentication-related error.
type AuthError struct {
	Type    Type
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}
