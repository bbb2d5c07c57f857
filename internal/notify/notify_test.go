package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/store"
)

func newTestStore(t *testing.T) store.DataStore {
	t.Helper()
	dataStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "notify_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dataStore.Close() })
	return dataStore
}

func TestSinkSendsOnceAndRecords(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dataStore := newTestStore(t)
	sender := NewTelegramSenderWithBaseURL("token", "chat", server.URL)
	sink := NewSink(dataStore, zerolog.Nop(), sender)
	ctx := context.Background()

	msg := Message{
		Channel:   models.ChannelTelegram,
		Ticker:    "AAPL",
		Text:      "TOP PICK AAPL",
		DedupeKey: "topN-batch-1-AAPL",
	}

	require.NoError(t, sink.Send(ctx, msg))
	require.NoError(t, sink.Send(ctx, msg))

	// One external attempt and one stored row for the key, no matter how
	// many times Send is called.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	records, err := dataStore.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotifySent, records[0].Status)
	assert.Equal(t, "TOP PICK AAPL", records[0].Message)
	assert.Empty(t, records[0].Error)
}

func TestSinkRecordsDeliveryFailureWithoutRaising(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	dataStore := newTestStore(t)
	sender := NewTelegramSenderWithBaseURL("token", "chat", server.URL)
	sink := NewSink(dataStore, zerolog.Nop(), sender)
	ctx := context.Background()

	err := sink.Send(ctx, Message{
		Channel:   models.ChannelTelegram,
		Text:      "will fail",
		DedupeKey: "alert-1-20250602-1800",
	})
	require.NoError(t, err, "delivery failure must not surface as an error")

	records, err := dataStore.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotifyError, records[0].Status)
	assert.Contains(t, records[0].Error, "502")
}

func TestSinkFailedKeyIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dataStore := newTestStore(t)
	sender := NewTelegramSenderWithBaseURL("token", "chat", server.URL)
	sink := NewSink(dataStore, zerolog.Nop(), sender)
	ctx := context.Background()

	msg := Message{Channel: models.ChannelTelegram, Text: "x", DedupeKey: "k1"}

	require.NoError(t, sink.Send(ctx, msg))
	require.NoError(t, sink.Send(ctx, msg))

	// The error row claims the key; no second attempt happens.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	records, err := dataStore.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotifyError, records[0].Status)
}

func TestSinkMissingChannelRecordsError(t *testing.T) {
	dataStore := newTestStore(t)
	sink := NewSink(dataStore, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, Message{
		Channel:   models.ChannelDesktop,
		Text:      "nobody listens",
		DedupeKey: "k2",
	}))

	records, err := dataStore.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotifyError, records[0].Status)
	assert.Contains(t, records[0].Error, "no sender")
}

func TestSinkDisabledChannelRecordsError(t *testing.T) {
	dataStore := newTestStore(t)
	// Empty credentials leave the sender disabled.
	sender := NewTelegramSender("", "", true)
	sink := NewSink(dataStore, zerolog.Nop(), sender)
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, Message{
		Channel:   models.ChannelTelegram,
		Text:      "x",
		DedupeKey: "k3",
	}))

	records, err := dataStore.GetNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.NotifyError, records[0].Status)
	assert.Contains(t, records[0].Error, "disabled")
}

func TestTelegramSenderPayload(t *testing.T) {
	var gotPath string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewTelegramSenderWithBaseURL("tok123", "chat456", server.URL)
	err := sender.Send(context.Background(), Message{
		Text:      "hello",
		ParseMode: "Markdown",
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottok123/sendMessage", gotPath)
	assert.Contains(t, string(gotBody), `"chat_id":"chat456"`)
	assert.Contains(t, string(gotBody), `"parse_mode":"Markdown"`)
	assert.Contains(t, string(gotBody), `"text":"hello"`)
}
