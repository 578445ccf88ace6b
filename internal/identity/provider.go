// Package identity supplies identity assertions that the backend exchanges for
// a session credential. Obtaining the assertion (consent screens, device
// flows) happens outside this program; providers only hand over whatever the
// external flow left behind.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAssertion means no assertion is available without user interaction.
var ErrNoAssertion = errors.New("no identity assertion available")

// Provider yields identity assertions for one identity provider.
type Provider interface {
	// Name is the provider identifier used in the exchange path, e.g. "google".
	Name() string

	// SilentAssertion returns a fresh assertion without prompting the user,
	// or ErrNoAssertion when that is not possible.
	SilentAssertion(ctx context.Context) (string, error)
}

// FileProvider reads the assertion from a file that an external sign-in helper
// keeps up to date.
type FileProvider struct {
	name string
	path string
}

func NewFileProvider(name, path string) *FileProvider {
	return &FileProvider{name: name, path: path}
}

func (p *FileProvider) Name() string {
	return p.name
}

func (p *FileProvider) SilentAssertion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.path == "" {
		return "", ErrNoAssertion
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoAssertion
		}
		return "", fmt.Errorf("failed to read identity token file: %w", err)
	}

	assertion := strings.TrimSpace(string(data))
	if assertion == "" {
		return "", ErrNoAssertion
	}
	return assertion, nil
}

// Store writes an assertion obtained interactively so later silent refreshes
// can reuse it.
func (p *FileProvider) Store(assertion string) error {
	if p.path == "" {
		return nil
	}
	return os.WriteFile(p.path, []byte(strings.TrimSpace(assertion)+"\n"), 0o600)
}

// StaticProvider always returns the same assertion.
type StaticProvider struct {
	name      string
	assertion string
}

func NewStaticProvider(name, assertion string) *StaticProvider {
	return &StaticProvider{name: name, assertion: assertion}
}

func (p *StaticProvider) Name() string {
	return p.name
}

func (p *StaticProvider) SilentAssertion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.assertion == "" {
		return "", ErrNoAssertion
	}
	return p.assertion, nil
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context) (string, error)
}

func (p ProviderFunc) Name() string {
	return p.ProviderName
}

func (p ProviderFunc) SilentAssertion(ctx context.Context) (string, error) {
	return p.Fn(ctx)
}
