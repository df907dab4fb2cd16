package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracklight/tracklight/internal/analytics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeFetcher hands out a fixed message list, then deadline-errors.
type fakeFetcher struct {
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		return kafka.Message{}, context.DeadlineExceeded
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeFetcher) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

// recordingSink captures inserted rows and can fail on demand.
type recordingSink struct {
	events   []analytics.EventRow
	sessions []analytics.SessionRow
	fail     error
}

func (s *recordingSink) InsertEvents(ctx context.Context, rows []analytics.EventRow) error {
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, rows...)
	return nil
}

func (s *recordingSink) InsertSessions(ctx context.Context, rows []analytics.SessionRow) error {
	if s.fail != nil {
		return s.fail
	}
	s.sessions = append(s.sessions, rows...)
	return nil
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2026-03-01T12:30:00Z"`, time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"rfc3339 nano", `"2026-03-01T12:30:00.250Z"`, time.Date(2026, 3, 1, 12, 30, 0, 250_000_000, time.UTC)},
		{"quoted epoch seconds", `"1767225600"`, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"bare epoch seconds", `1767225600`, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"bare epoch fractional", `1767225600.5`, time.Date(2026, 1, 1, 0, 0, 0, 500_000_000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, parseTimestamp(json.RawMessage(tt.in)).Equal(tt.want))
		})
	}
}

func TestParseTimestamp_GarbageFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	got := parseTimestamp(json.RawMessage(`"not a timestamp"`))
	after := time.Now().UTC()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestCycle_BranchesByTopicSuffix(t *testing.T) {
	events := &fakeFetcher{msgs: []kafka.Message{
		{Topic: "tracklight-events", Value: []byte(`{"id":7,"project":"web","level":"error","fingerprint":"error:boom","title":"boom","message":"boom","received_at":"2026-03-01T12:00:00Z"}`)},
	}}
	sessions := &fakeFetcher{msgs: []kafka.Message{
		{Topic: "tracklight-sessions", Value: []byte(`{"project":"web","release":"1.0.0","environment":"production","status":"exited","session_id":"s1","user":"alice","duration_ms":4200,"started_at":"1767225600"}`)},
	}}
	sink := &recordingSink{}
	c := New([]Fetcher{events, sessions}, sink, testLogger())

	require.NoError(t, c.cycle(context.Background()))

	require.Len(t, sink.events, 1)
	assert.Equal(t, uint64(7), sink.events[0].ID)
	assert.Equal(t, "error:boom", sink.events[0].Fingerprint)

	require.Len(t, sink.sessions, 1)
	assert.Equal(t, "exited", sink.sessions[0].Status)
	assert.Equal(t, uint32(4200), sink.sessions[0].DurationMS)
}

func TestCycle_NumericEpochTimestampKeptNotDropped(t *testing.T) {
	events := &fakeFetcher{msgs: []kafka.Message{
		{Topic: "tracklight-events", Value: []byte(`{"id":9,"project":"web","level":"error","message":"boom","received_at":1767225600}`)},
	}}
	sink := &recordingSink{}
	c := New([]Fetcher{events}, sink, testLogger())

	require.NoError(t, c.cycle(context.Background()))

	require.Len(t, sink.events, 1)
	assert.Equal(t, uint64(9), sink.events[0].ID)
	assert.True(t, sink.events[0].ReceivedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCycle_SkipsMalformedMessages(t *testing.T) {
	events := &fakeFetcher{msgs: []kafka.Message{
		{Topic: "tracklight-events", Value: []byte(`{{{not json`)},
		{Topic: "tracklight-events", Value: []byte(`{"id":1,"project":"web","message":"ok","received_at":"2026-03-01T12:00:00Z"}`)},
	}}
	sink := &recordingSink{}
	c := New([]Fetcher{events}, sink, testLogger())

	require.NoError(t, c.cycle(context.Background()))

	require.Len(t, sink.events, 1)
	assert.Equal(t, uint64(1), sink.events[0].ID)
	// Malformed messages are still committed so they are not refetched forever.
	assert.Len(t, events.committed, 2)
}

func TestCycle_CommitsAfterInsert(t *testing.T) {
	events := &fakeFetcher{msgs: []kafka.Message{
		{Topic: "tracklight-events", Value: []byte(`{"id":1,"project":"web","message":"ok","received_at":"x"}`)},
	}}
	sink := &recordingSink{fail: assert.AnError}
	c := New([]Fetcher{events}, sink, testLogger())

	require.Error(t, c.cycle(context.Background()))
	assert.Empty(t, events.committed, "no commit when the insert fails")
}

func TestCycle_EmptyFetchIsNoop(t *testing.T) {
	events := &fakeFetcher{}
	sink := &recordingSink{}
	c := New([]Fetcher{events}, sink, testLogger())

	require.NoError(t, c.cycle(context.Background()))
	assert.Empty(t, sink.events)
	assert.Empty(t, events.committed)
}

func TestClose_ClosesAllReaders(t *testing.T) {
	a, b := &fakeFetcher{}, &fakeFetcher{}
	c := New([]Fetcher{a, b}, &recordingSink{}, testLogger())

	require.NoError(t, c.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
