package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querymind/querymind/internal/executor"
	"github.com/querymind/querymind/internal/guardrail"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout

	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w

	fn()

	w.Close()

	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	return buf.String()
}

func TestPrintRejection(t *testing.T) {
	verdict := &guardrail.Verdict{
		Accepted: false,
		Reason:   guardrail.ReasonForbiddenKeyword,
		Detail:   "forbidden keyword: DROP",
	}

	output := captureStdout(t, func() { printRejection(verdict) })

	assert.Contains(t, output, "forbidden-keyword")
	assert.Contains(t, output, "forbidden keyword: DROP")
	assert.Contains(t, output, "Nothing was executed.")
}

func TestPrintResultEmpty(t *testing.T) {
	output := captureStdout(t, func() {
		printResult(&executor.Result{Columns: []string{"id"}})
	})

	assert.Contains(t, output, "No rows returned.")
}

func TestPrintResultRows(t *testing.T) {
	result := &executor.Result{
		Columns:   []string{"name", "total"},
		Rows:      [][]interface{}{{"alice", int64(3)}, {[]byte("bob"), nil}},
		RowCount:  2,
		ElapsedMS: 12,
	}

	output := captureStdout(t, func() { printResult(result) })

	assert.Contains(t, output, "name")
	assert.Contains(t, output, "alice")
	assert.Contains(t, output, "bob")
	assert.Contains(t, output, "NULL")
	assert.Contains(t, output, "2 rows in 12ms")
}

func TestPrintResultTruncated(t *testing.T) {
	result := &executor.Result{
		Columns:   []string{"id"},
		Rows:      [][]interface{}{{int64(1)}},
		RowCount:  1,
		Truncated: true,
		ElapsedMS: 5,
	}

	output := captureStdout(t, func() { printResult(result) })

	assert.Contains(t, output, "truncated")
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "raw", formatCell([]byte("raw")))
	assert.Equal(t, "42", formatCell(int64(42)))
	assert.Equal(t, "true", formatCell(true))
}
