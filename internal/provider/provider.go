// Package provider defines the capability interface every upstream adapter
// implements and the registry that selects one for a given link.
package provider

import (
	"context"
	"net/http"

	"github.com/tinoosan/debrix/internal/data"
)

// Resolved is a direct download URL plus whatever headers the origin needs
// to serve it. The relay is provider-agnostic: it sends Header verbatim.
type Resolved struct {
	URL      string
	Filename string
	Header   http.Header
}

// Provider adapts one upstream service. Implementations route every
// authenticated call through their credential manager before dispatch.
type Provider interface {
	Name() string
	// Matches reports whether this provider handles the given link.
	Matches(rawURL string) bool
	Authenticate(ctx context.Context) error
	Authenticated() bool
	// Resolve exchanges a share link for a direct download URL and filename.
	Resolve(ctx context.Context, rawURL, password string) (*Resolved, error)
	// Browse lists the files behind a share link, walking folders.
	Browse(ctx context.Context, rawURL, password string) ([]data.File, error)
}

// Registry picks a provider by URL pattern, in registration order. The last
// registered provider is expected to be a catch-all.
type Registry struct {
	providers []Provider
}

func NewRegistry(ps ...Provider) *Registry {
	return &Registry{providers: ps}
}

func (r *Registry) ForURL(rawURL string) Provider {
	for _, p := range r.providers {
		if p.Matches(rawURL) {
			return p
		}
	}
	return nil
}

func (r *Registry) All() []Provider {
	return r.providers
}
