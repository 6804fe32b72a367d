package telemetry

import (
	"context"
	"testing"

	"github.com/dennisonbertram/contextvault/pkg/idgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCorrelation_BindsRetrievableID(t *testing.T) {
	ctx := context.Background()
	ctx, id := WithCorrelation(ctx, idgen.New)

	require.NotEmpty(t, id)
	assert.Equal(t, id, CorrelationID(ctx))
}

func TestCorrelationID_EmptyWhenUnset(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
	assert.Empty(t, ParentSpanID(context.Background()))
}

func TestWithSpan_NestsUnderCorrelationThenUnderEnclosingSpan(t *testing.T) {
	ctx := context.Background()
	ctx, corrID := WithCorrelation(ctx, idgen.New)

	ctx, span1 := WithSpan(ctx, idgen.New)
	assert.Equal(t, corrID, ParentSpanID(ctx), "a top-level span's parent is the correlation id")

	ctx, span2 := WithSpan(ctx, idgen.New)
	assert.Equal(t, span1, ParentSpanID(ctx), "a nested span's parent is the enclosing span's id")
	assert.NotEqual(t, span1, span2)
}

func TestDetachedCopy_SurvivesParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	parent, corrID := WithCorrelation(parent, idgen.New)
	parent, _ = WithSpan(parent, idgen.New)

	detached := DetachedCopy(parent)
	cancel()

	require.Error(t, parent.Err(), "parent is cancelled")
	assert.Nil(t, detached.Done(), "detached carries no cancellation")
	assert.Equal(t, corrID, CorrelationID(detached))
	assert.Equal(t, corrID, ParentSpanID(detached), "a top-level span's parent was the correlation id")
}
