package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApprovalsRecordAndLookup(t *testing.T) {
	a := NewApprovals(time.Hour)
	defer a.Stop()
	ctx := context.Background()

	ok, err := a.HasValidApproval(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)

	a.Record("client-1")
	ok, err = a.HasValidApproval(ctx, "client-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Unknown clients stay unapproved.
	ok, _ = a.HasValidApproval(ctx, "client-2")
	assert.False(t, ok)
}

func TestApprovalsExpire(t *testing.T) {
	a := NewApprovals(10 * time.Millisecond)
	defer a.Stop()
	ctx := context.Background()

	a.Record("client-1")
	time.Sleep(25 * time.Millisecond)

	ok, err := a.HasValidApproval(ctx, "client-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// cleanup drops the expired entry entirely
	a.cleanup()
	a.mu.RLock()
	_, present := a.entries["client-1"]
	a.mu.RUnlock()
	assert.False(t, present)
}

func TestApprovalsIgnoreEmptyClientID(t *testing.T) {
	a := NewApprovals(time.Hour)
	defer a.Stop()

	a.Record("")
	ok, err := a.HasValidApproval(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApprovalsStopIsIdempotent(t *testing.T) {
	a := NewApprovals(time.Hour)
	a.Stop()
	a.Stop()
}
