package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"robustroute/internal/metrics"
)

type delivery struct {
	ID        string
	EventType string
	Payload   []byte
}

// Worker posts queued notifications to a single URL, retrying failures with
// exponential backoff.
type Worker struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Log         zerolog.Logger

	queue chan delivery
	stop  chan struct{}
	wg    sync.WaitGroup
}

func NewWorker(url, secret string, maxAttempts int, timeout time.Duration, log zerolog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: timeout},
		MaxAttempts: maxAttempts,
		Backoff:     nextBackoff,
		Log:         log,
		queue:       make(chan delivery, 256),
		stop:        make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.stop:
				return
			case d := <-w.queue:
				w.deliver(d)
			}
		}
	}()
}

// Stop ends the loop after the delivery in flight, if any.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) deliver(d delivery) bool {
	for attempt := 0; attempt < w.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-w.stop:
				return false
			case <-time.After(w.Backoff(attempt - 1)):
			}
		}
		code, err := w.post(d)
		if err == nil {
			return true
		}
		w.Log.Warn().Err(err).Str("event_id", d.ID).Int("attempt", attempt+1).Int("code", code).Msg("notification failed")
	}
	w.Log.Error().Str("event_id", d.ID).Int("attempts", w.MaxAttempts).Msg("notification given up")
	return false
}

func (w *Worker) post(d delivery) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.HTTP.Timeout+time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, d.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := float64(time.Since(start).Milliseconds())
	code := 0
	if resp != nil {
		code = resp.StatusCode
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}
	if err == nil && (code < 200 || code >= 300) {
		err = fmt.Errorf("unexpected status %d", code)
	}
	status := "ok"
	if err != nil {
		status = strconv.Itoa(code)
	}
	metrics.NotifyDeliveries.WithLabelValues(d.EventType, status).Inc()
	metrics.NotifyLatency.WithLabelValues(d.EventType, status).Observe(latency)
	return code, err
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
