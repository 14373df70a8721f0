package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithIdentifier(ctx, "session-a")
	ctx = WithTraceID(ctx, "trace-x")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	ident, ok := Identifier(ctx)
	assert.True(t, ok)
	assert.Equal(t, "session-a", ident)

	tr, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-x", tr)

	_, ok = Identifier(WithIdentifier(context.Background(), ""))
	assert.False(t, ok)
}

func TestParseAnalysisType(t *testing.T) {
	got, err := ParseAnalysisType("")
	assert.NoError(t, err)
	assert.Equal(t, AnalysisLifestyle, got)

	got, err = ParseAnalysisType("product")
	assert.NoError(t, err)
	assert.Equal(t, AnalysisProduct, got)

	_, err = ParseAnalysisType("medical")
	assert.True(t, IsErrorCode(err, ErrInvalidRequest))
}
