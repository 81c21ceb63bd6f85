package generate

import (
	"context"
	"time"

	"github.com/querymind/querymind/internal/prompt"
)

// WithTimeout bounds every Generate call of the wrapped backend with its
// own deadline derived from the caller's context. A non-positive timeout
// returns the backend unwrapped.
func WithTimeout(backend Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return backend
	}

	return &timeoutBackend{backend: backend, timeout: timeout}
}

type timeoutBackend struct {
	backend Backend
	timeout time.Duration
}

func (b *timeoutBackend) Generate(ctx context.Context, req prompt.Request, emit func(chunk string) error) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	return b.backend.Generate(ctx, req, emit)
}
