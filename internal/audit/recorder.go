package audit

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"namegate/internal/audit/models"
	id "namegate/pkg/domain"
)

// Store is the persistence port for audit entries.
type Store interface {
	Insert(ctx context.Context, entry *models.Entry) error
	ListByTarget(ctx context.Context, targetUserID id.UserID, limit int) ([]*models.Entry, error)
}

// DropCounter counts audit entries that could not be recorded.
type DropCounter interface {
	IncAuditWriteFailure()
}

const defaultBufferSize = 1024

// Recorder writes audit entries asynchronously so disclosure requests never
// block on the audit store. Record enqueues; a single Run goroutine drains.
// When the buffer is full the entry is dropped and counted rather than
// stalling the caller.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	drops   DropCounter
	entries chan models.Entry

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

type RecorderOption func(r *Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func WithDropCounter(drops DropCounter) RecorderOption {
	return func(r *Recorder) { r.drops = drops }
}

func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) { r.entries = make(chan models.Entry, n) }
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		entries: make(chan models.Entry, defaultBufferSize),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Disclosure describes one name disclosure to be audited.
type Disclosure struct {
	TargetUserID  id.UserID
	RequesterID   *id.UserID
	ClientID      *id.ClientID
	ContextID     *id.ContextID
	DisclosedName string
	Tier          string
	AccessedAt    time.Time
}

// Record enqueues a disclosure entry. It never blocks; a full buffer drops
// the entry and bumps the failure counter.
func (r *Recorder) Record(ctx context.Context, d Disclosure) {
	entry := models.Entry{
		ID:            r.newID(d.AccessedAt),
		Action:        models.ActionNameDisclosed,
		TargetUserID:  d.TargetUserID,
		RequesterID:   d.RequesterID,
		ClientID:      d.ClientID,
		ContextID:     d.ContextID,
		DisclosedName: d.DisclosedName,
		Tier:          d.Tier,
		AccessedAt:    d.AccessedAt,
	}

	select {
	case r.entries <- entry:
	default:
		if r.drops != nil {
			r.drops.IncAuditWriteFailure()
		}
		if r.logger != nil {
			r.logger.WarnContext(ctx, "audit buffer full, entry dropped",
				"target_user_id", d.TargetUserID.String(),
				"tier", d.Tier,
			)
		}
	}
}

// Run drains the buffer until ctx is cancelled, then flushes whatever is
// still queued. Call it from a dedicated goroutine.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.entries:
			r.persist(ctx, &entry)
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		}
	}
}

func (r *Recorder) flush() {
	// Writes after shutdown get a short independent deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case entry := <-r.entries:
			r.persist(ctx, &entry)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, entry *models.Entry) {
	if err := r.store.Insert(ctx, entry); err != nil {
		if r.drops != nil {
			r.drops.IncAuditWriteFailure()
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "failed to persist audit entry",
				"entry_id", entry.ID,
				"error", err,
			)
		}
	}
}

// History returns the newest disclosure entries for a target user.
func (r *Recorder) History(ctx context.Context, targetUserID id.UserID, limit int) ([]*models.Entry, error) {
	return r.store.ListByTarget(ctx, targetUserID, limit)
}

func (r *Recorder) newID(at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), r.entropy).String()
}
