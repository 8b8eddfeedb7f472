package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namegate/internal/audit/models"
	"namegate/internal/audit/store"
	id "namegate/pkg/domain"
)

type countingDrops struct {
	mu sync.Mutex
	n  int
}

func (c *countingDrops) IncAuditWriteFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *countingDrops) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func disclosure(target id.UserID, at time.Time) Disclosure {
	return Disclosure{
		TargetUserID:  target,
		DisclosedName: "Jane Doe",
		Tier:          "fallback",
		AccessedAt:    at,
	}
}

func TestRecorderPersistsEntries(t *testing.T) {
	st := store.NewInMemoryStore()
	rec := NewRecorder(st)
	target := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	rec.Record(ctx, disclosure(target, now))
	rec.Record(ctx, disclosure(target, now.Add(time.Second)))

	cancel()
	<-done

	entries, err := rec.History(context.Background(), target, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionNameDisclosed, entries[0].Action)
	assert.True(t, entries[0].ID > entries[1].ID, "newest first")
}

func TestRecorderFlushesOnShutdown(t *testing.T) {
	st := store.NewInMemoryStore()
	rec := NewRecorder(st)
	target := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// enqueue before the worker ever runs; shutdown must still flush
	for i := 0; i < 5; i++ {
		rec.Record(context.Background(), disclosure(target, now.Add(time.Duration(i)*time.Second)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = rec.Run(ctx)

	entries, err := rec.History(context.Background(), target, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	drops := &countingDrops{}
	rec := NewRecorder(store.NewInMemoryStore(), WithBufferSize(1), WithDropCounter(drops))
	target := id.UserID(uuid.New())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// no worker running: second record overflows the size-1 buffer
	rec.Record(context.Background(), disclosure(target, now))
	rec.Record(context.Background(), disclosure(target, now))

	assert.Equal(t, 1, drops.count())
}

func TestRecorderIDsAreMonotonic(t *testing.T) {
	rec := NewRecorder(store.NewInMemoryStore())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := rec.newID(now)
	for i := 0; i < 100; i++ {
		next := rec.newID(now)
		require.True(t, next > prev, "ids issued at the same timestamp must still increase")
		prev = next
	}
}
