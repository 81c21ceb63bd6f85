package generate

import (
	"context"
	"strings"

	"github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/logging"
	"github.com/querymind/querymind/internal/prompt"
)

// Generator runs a streaming generation and assembles the full candidate.
type Generator struct {
	backend Backend
	logger  *logging.Logger
}

// NewGenerator creates a generator over the given backend.
func NewGenerator(backend Backend, logger *logging.Logger) *Generator {
	return &Generator{backend: backend, logger: logger}
}

// Run streams fragments to out while buffering them, and returns the
// complete candidate once the model finishes. If the stream errors or the
// context is canceled mid-flight, the partial buffer is discarded and
// nothing is returned for execution. There is no internal retry.
func (g *Generator) Run(ctx context.Context, req prompt.Request, out chan<- string) (string, error) {
	var buf strings.Builder

	err := g.backend.Generate(ctx, req, func(chunk string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- chunk:
		}

		buf.WriteString(chunk)

		return nil
	})
	if err != nil {
		if g.logger != nil {
			g.logger.WithError(err).Warn("generation aborted, discarding partial candidate")
		}

		return "", errors.Wrap(err, errors.ErrTypeGeneration, "generation aborted before completion")
	}

	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeGeneration, "generation aborted before completion")
	}

	return buf.String(), nil
}
