package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "soulcert/pkg/domain"
	audit "soulcert/pkg/platform/audit"
	"soulcert/pkg/platform/audit/store/memory"
)

type failingStore struct {
	*memory.InMemoryStore
}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func issued(p id.PrincipalID, recordID string) audit.Event {
	return audit.Event{Principal: p, Action: string(audit.EventCredentialIssued), Subject: recordID}
}

func TestPublisher_Sync(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	holder := id.NewPrincipalID()
	other := id.NewPrincipalID()

	require.NoError(t, pub.Emit(context.Background(), issued(holder, "0")))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Principal: holder, Action: string(audit.EventCredentialBurned), Subject: "0"}))
	require.NoError(t, pub.Emit(context.Background(), issued(other, "1")))

	t.Run("lists only the principal's events in emit order", func(t *testing.T) {
		got, err := pub.List(context.Background(), holder)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, string(audit.EventCredentialIssued), got[0].Action)
		assert.Equal(t, string(audit.EventCredentialBurned), got[1].Action)
	})

	t.Run("store errors surface to the caller", func(t *testing.T) {
		failing := NewPublisher(failingStore{memory.NewInMemoryStore()})
		assert.Error(t, failing.Emit(context.Background(), issued(holder, "2")))
	})
}

func TestPublisher_Timestamps(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore())
	p := id.NewPrincipalID()
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), issued(p, "0")))
	stamped := audit.Event{Principal: p, Action: string(audit.EventOfferCreated), Timestamp: fixed}
	require.NoError(t, pub.Emit(context.Background(), stamped))

	got, err := pub.List(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Timestamp.Before(before), "zero timestamps are filled at emit")
	assert.Equal(t, fixed, got[1].Timestamp, "existing timestamps are kept")
}

func TestPublisher_Async(t *testing.T) {
	t.Run("close drains queued events", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store, WithAsyncBuffer(64))
		p := id.NewPrincipalID()
		for range 20 {
			require.NoError(t, pub.Emit(context.Background(), issued(p, "0")))
		}
		pub.Close()

		got, err := store.ListByPrincipal(context.Background(), p)
		require.NoError(t, err)
		assert.Len(t, got, 20)
	})

	t.Run("emit after close writes through", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store, WithAsyncBuffer(4))
		pub.Close()
		pub.Close()

		p := id.NewPrincipalID()
		require.NoError(t, pub.Emit(context.Background(), issued(p, "3")))
		got, err := store.ListByPrincipal(context.Background(), p)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("full buffer is reported", func(t *testing.T) {
		pub := &Publisher{store: memory.NewInMemoryStore(), events: make(chan audit.Event, 1)}
		p := id.NewPrincipalID()
		require.NoError(t, pub.Emit(context.Background(), issued(p, "0")))

		assert.ErrorIs(t, pub.Emit(context.Background(), issued(p, "1")), errBufferFull)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, pub.Emit(ctx, issued(p, "2")), context.Canceled)
	})
}
