package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/config"
	qerrors "github.com/querymind/querymind/internal/errors"
	"github.com/querymind/querymind/internal/guardrail"
)

func TestExecuteRefusesRejectedVerdict(t *testing.T) {
	gateway := NewPostgresGateway(config.PolicyConfig{
		StatementTimeoutMS: 10000,
		MaxRows:            500,
	}, nil)

	verdict := guardrail.Verdict{
		Accepted: false,
		Reason:   guardrail.ReasonForbiddenKeyword,
	}

	result, err := gateway.Execute(context.Background(), "postgres://localhost/db", verdict)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, qerrors.IsType(err, qerrors.ErrTypeValidation))
	assert.Contains(t, err.Error(), guardrail.ReasonForbiddenKeyword)
}

func TestExecuteRejectsInvalidDSN(t *testing.T) {
	gateway := NewPostgresGateway(config.PolicyConfig{
		StatementTimeoutMS: 10000,
		MaxRows:            500,
	}, nil)

	verdict := guardrail.Verdict{Accepted: true, Normalized: "SELECT 1"}

	_, err := gateway.Execute(context.Background(), "://not-a-dsn", verdict)

	require.Error(t, err)
	assert.True(t, qerrors.IsType(err, qerrors.ErrTypeExecution))
}
