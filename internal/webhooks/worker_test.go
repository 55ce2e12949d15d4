package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDeliverSignsAndSucceeds(t *testing.T) {
	var (
		mu      sync.Mutex
		gotSig  string
		gotType string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWorker(srv.URL, "secret", 3, time.Second, zerolog.Nop())
	p := NewPublisher(w, zerolog.Nop())
	p.Emit(context.Background(), EventRunFinished, map[string]any{"runId": "r1"})

	d := <-w.queue
	require.True(t, w.deliver(d))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, EventRunFinished, gotType)
	require.True(t, VerifyHMAC("secret", gotBody, gotSig))
	var env Envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	require.Equal(t, EventRunFinished, env.Type)
	require.Equal(t, d.ID, env.ID)
}

func TestDeliverRetriesThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWorker(srv.URL, "", 3, time.Second, zerolog.Nop())
	w.Backoff = func(int) time.Duration { return time.Millisecond }
	require.False(t, w.deliver(delivery{ID: "e1", EventType: EventBatchFinished, Payload: []byte(`{}`)}))
	require.Equal(t, int32(3), calls.Load())
}

func TestDeliverRecoversAfterFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWorker(srv.URL, "", 5, time.Second, zerolog.Nop())
	w.Backoff = func(int) time.Duration { return time.Millisecond }
	w.Start()
	NewPublisher(w, zerolog.Nop()).Emit(context.Background(), EventRunFinished, nil)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestNilPublisherDrops(t *testing.T) {
	var p *Publisher
	p.Emit(context.Background(), EventRunFinished, nil)
	NewPublisher(nil, zerolog.Nop()).Emit(context.Background(), EventRunFinished, nil)
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(-1))
	require.Equal(t, 8*time.Second, nextBackoff(3))
	require.Equal(t, 1024*time.Second, nextBackoff(50))
}
