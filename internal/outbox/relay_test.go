package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRelayStore keeps pending entries in a slice, mimicking the
// created_at-ordered query.
type fakeRelayStore struct {
	pending []Entry

	relayed  []string
	failures map[string]int

	listErr        error
	markRelayedErr error
	recordErr      error
}

func newFakeRelayStore(entries ...Entry) *fakeRelayStore {
	return &fakeRelayStore{
		pending:  entries,
		failures: make(map[string]int),
	}
}

func (f *fakeRelayStore) ListPending(_ context.Context, limit int) ([]Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	// Same ordering as the real query: created_at, then seq
	sort.SliceStable(f.pending, func(i, j int) bool {
		if f.pending[i].CreatedAt.Equal(f.pending[j].CreatedAt) {
			return f.pending[i].Seq < f.pending[j].Seq
		}
		return f.pending[i].CreatedAt.Before(f.pending[j].CreatedAt)
	})

	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	out := make([]Entry, limit)
	copy(out, f.pending[:limit])
	return out, nil
}

func (f *fakeRelayStore) MarkRelayed(_ context.Context, id string) error {
	if f.markRelayedErr != nil {
		return f.markRelayedErr
	}
	f.relayed = append(f.relayed, id)
	for i, entry := range f.pending {
		if entry.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRelayStore) RecordPublishFailure(_ context.Context, id, _ string, maxAttempts int) (bool, error) {
	if f.recordErr != nil {
		return false, f.recordErr
	}
	f.failures[id]++
	if f.failures[id] >= maxAttempts {
		for i, entry := range f.pending {
			if entry.ID == id {
				f.pending = append(f.pending[:i], f.pending[i+1:]...)
				break
			}
		}
		return true, nil
	}
	return false, nil
}

type publishedEvent struct {
	eventType string
	body      []byte
}

type fakeEventPublisher struct {
	published []publishedEvent

	// failTypes maps event types that should fail to the error returned
	failTypes map[string]error
}

func (f *fakeEventPublisher) PublishEvent(_ context.Context, eventType string, body []byte) error {
	if err, ok := f.failTypes[eventType]; ok {
		return err
	}
	f.published = append(f.published, publishedEvent{eventType: eventType, body: body})
	return nil
}

var testSeq int64

func pendingEntry(id, aggregateID, eventType string) Entry {
	testSeq++
	return Entry{
		ID:          id,
		Seq:         testSeq,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

func testRelay(store RelayStore, publisher Publisher) *Relay {
	return NewRelay(store, publisher, RelayConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    100,
		MaxAttempts:  3,
	}, discardLogger())
}

func TestRelay_RunOncePublishesInOrder(t *testing.T) {
	store := newFakeRelayStore(
		pendingEntry("evt-1", "job-a", "job.email.sent"),
		pendingEntry("evt-2", "job-a", "job.email.bounced"),
		pendingEntry("evt-3", "job-b", "job.report.generated"),
	)
	publisher := &fakeEventPublisher{}
	relay := testRelay(store, publisher)

	require.NoError(t, relay.RunOnce(context.Background()))

	require.Len(t, publisher.published, 3)
	assert.Equal(t, "job.email.sent", publisher.published[0].eventType)
	assert.Equal(t, "job.email.bounced", publisher.published[1].eventType)
	assert.Equal(t, "job.report.generated", publisher.published[2].eventType)
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, store.relayed)
	assert.Empty(t, store.pending)
}

func TestRelay_FailureSkipsLaterEventsOfSameAggregate(t *testing.T) {
	store := newFakeRelayStore(
		pendingEntry("evt-1", "job-a", "job.email.queued"),
		pendingEntry("evt-2", "job-a", "job.email.sent"),
		pendingEntry("evt-3", "job-b", "job.report.generated"),
	)
	publisher := &fakeEventPublisher{
		failTypes: map[string]error{"job.email.queued": errors.New("broker refused")},
	}
	relay := testRelay(store, publisher)

	require.NoError(t, relay.RunOnce(context.Background()))

	// job-a is parked for this cycle but job-b keeps flowing
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "job.report.generated", publisher.published[0].eventType)
	assert.Equal(t, []string{"evt-3"}, store.relayed)
	assert.Equal(t, 1, store.failures["evt-1"])
	assert.Zero(t, store.failures["evt-2"], "later events of a failed aggregate must not be attempted")

	// Next cycle, after the broker recovers, order is restored
	publisher.failTypes = nil
	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Equal(t, []string{"evt-3", "evt-1", "evt-2"}, store.relayed)
}

// Events committed in one transaction share a created_at (NOW() is
// transaction-stable in Postgres); seq must keep them in insertion order
// regardless of their random ids.
func TestRelay_SameTimestampEventsKeepInsertionOrder(t *testing.T) {
	committedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := pendingEntry("fe9d2c71-0000-4000-8000-000000000002", "job-a", "job.report.created")
	updated := pendingEntry("0a1b2c3d-0000-4000-8000-000000000001", "job-a", "job.report.updated")
	created.CreatedAt = committedAt
	updated.CreatedAt = committedAt

	// Listed out of seq order; the id of the later event sorts before the
	// earlier one, so an id tiebreak would flip them
	store := newFakeRelayStore(updated, created)
	publisher := &fakeEventPublisher{}
	relay := testRelay(store, publisher)

	require.NoError(t, relay.RunOnce(context.Background()))

	require.Len(t, publisher.published, 2)
	assert.Equal(t, "job.report.created", publisher.published[0].eventType)
	assert.Equal(t, "job.report.updated", publisher.published[1].eventType)
}

func TestRelay_ExhaustedAttemptsParkRow(t *testing.T) {
	store := newFakeRelayStore(
		pendingEntry("evt-1", "job-a", "job.email.sent"),
	)
	publisher := &fakeEventPublisher{
		failTypes: map[string]error{"job.email.sent": errors.New("broker refused")},
	}
	relay := testRelay(store, publisher) // MaxAttempts: 3

	for i := 0; i < 3; i++ {
		require.NoError(t, relay.RunOnce(context.Background()))
	}

	assert.Equal(t, 3, store.failures["evt-1"])
	assert.Empty(t, store.pending, "row parked as FAILED after exhausting attempts")
	assert.Empty(t, store.relayed)

	// Subsequent cycles see nothing to do
	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Equal(t, 3, store.failures["evt-1"])
}

func TestRelay_MarkRelayedFailureLeavesRowPending(t *testing.T) {
	store := newFakeRelayStore(
		pendingEntry("evt-1", "job-a", "job.email.sent"),
	)
	store.markRelayedErr = errors.New("connection reset")
	publisher := &fakeEventPublisher{}
	relay := testRelay(store, publisher)

	require.NoError(t, relay.RunOnce(context.Background()))

	// Event went out but the row stays PENDING; the next cycle republishes
	require.Len(t, publisher.published, 1)
	require.Len(t, store.pending, 1)

	store.markRelayedErr = nil
	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Len(t, publisher.published, 2, "duplicate publish is expected under at-least-once")
	assert.Equal(t, []string{"evt-1"}, store.relayed)
}

func TestRelay_ListPendingErrorSurfaced(t *testing.T) {
	store := newFakeRelayStore()
	store.listErr = errors.New("connection refused")
	relay := testRelay(store, &fakeEventPublisher{})

	err := relay.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRelay_RunOnceRespectsBatchSize(t *testing.T) {
	var entries []Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, pendingEntry(
			fmt.Sprintf("evt-%d", i), fmt.Sprintf("job-%d", i), "job.email.sent"))
	}
	store := newFakeRelayStore(entries...)
	publisher := &fakeEventPublisher{}
	relay := NewRelay(store, publisher, RelayConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    4,
		MaxAttempts:  3,
	}, discardLogger())

	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Len(t, publisher.published, 4)

	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Len(t, publisher.published, 8)
}

func TestRelay_RunStopsOnContextCancel(t *testing.T) {
	store := newFakeRelayStore(
		pendingEntry("evt-1", "job-a", "job.email.sent"),
	)
	publisher := &fakeEventPublisher{}
	relay := testRelay(store, publisher)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	// Give the ticker at least one cycle, then stop
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after context cancellation")
	}

	assert.NotEmpty(t, store.relayed)
}

func TestNewRelay_Defaults(t *testing.T) {
	relay := NewRelay(newFakeRelayStore(), &fakeEventPublisher{}, RelayConfig{}, discardLogger())

	assert.Equal(t, 2*time.Second, relay.pollInterval)
	assert.Equal(t, 100, relay.batchSize)
	assert.Equal(t, 10, relay.maxAttempts)
}
