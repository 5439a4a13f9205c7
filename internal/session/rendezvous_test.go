package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/grammarctl/internal/fault"
)

func TestRendezvous_RunsActionOnWorker(t *testing.T) {
	r := NewRendezvous(time.Second)

	var ran atomic.Bool
	err := r.RequestAndWait(context.Background(),
		func(token any) error {
			go r.Reached(token)
			return nil
		},
		func() { ran.Store(true) })

	require.NoError(t, err)
	assert.True(t, ran.Load())
	assert.False(t, r.Pending())
}

func TestRendezvous_SecondRequestFailsFast(t *testing.T) {
	r := NewRendezvous(0)

	tokens := make(chan any, 1)
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- r.RequestAndWait(context.Background(),
			func(token any) error {
				tokens <- token
				return nil
			},
			func() {})
	}()

	token := <-tokens
	require.True(t, r.Pending())

	err := r.RequestAndWait(context.Background(), func(any) error { return nil }, func() {})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.UpdateAlreadyInProgress))

	require.True(t, r.Reached(token))
	select {
	case err := <-firstDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first request never completed")
	}
}

func TestRendezvous_TimeoutAbandonsAction(t *testing.T) {
	r := NewRendezvous(20 * time.Millisecond)

	var token any
	var ran atomic.Bool
	err := r.RequestAndWait(context.Background(),
		func(tok any) error {
			token = tok
			return nil
		},
		func() { ran.Store(true) })

	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.UpdateTimeout))
	assert.False(t, r.Pending())

	// A late update for the abandoned request is ignored.
	assert.False(t, r.Reached(token))
	assert.False(t, ran.Load())
}

func TestRendezvous_ContextCancel(t *testing.T) {
	r := NewRendezvous(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RequestAndWait(ctx, func(any) error { return nil }, func() {})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.UpdateTimeout))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, r.Pending())
}

func TestRendezvous_PostErrorClearsSlot(t *testing.T) {
	r := NewRendezvous(time.Second)
	boom := errors.New("engine gone")

	err := r.RequestAndWait(context.Background(), func(any) error { return boom }, func() {})
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Pending())

	// The slot is free again.
	err = r.RequestAndWait(context.Background(),
		func(token any) error {
			go r.Reached(token)
			return nil
		},
		func() {})
	assert.NoError(t, err)
}

func TestRendezvous_IgnoresForeignTokens(t *testing.T) {
	r := NewRendezvous(0)
	assert.False(t, r.Reached("not a rendezvous token"))
	assert.False(t, r.Reached(UpdateToken(42)))
	assert.False(t, r.Reached(nil))
}
