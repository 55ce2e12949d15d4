package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"robustroute/internal/model"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that any API
// instance can stream a run executing on another. Publish only queues; a
// single goroutine does the Redis round trips in order.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
	log    zerolog.Logger

	mu   sync.Mutex
	subs map[chan model.ProgressEvent]*redis.PubSub

	out       chan redisMessage
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type redisMessage struct {
	runID   string
	payload []byte
}

const (
	redisQueueSize   = 256
	redisSendTimeout = 2 * time.Second
)

func NewRedisBroker(url, prefix string, log zerolog.Logger) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if prefix == "" {
		prefix = "robustroute:runs"
	}
	b := &RedisBroker{
		rdb:    rdb,
		prefix: prefix,
		log:    log,
		subs:   map[chan model.ProgressEvent]*redis.PubSub{},
		out:    make(chan redisMessage, redisQueueSize),
		stop:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.publishLoop()
	return b, nil
}

func (b *RedisBroker) Subscribe(runID string) chan model.ProgressEvent {
	ch := make(chan model.ProgressEvent, 32)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	// wait for the subscription to be confirmed so no early event is lost
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn().Err(err).Str("run_id", runID).Msg("redis subscribe")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				continue
			}
			deliver(ch, evt)
		}
	}()
	return ch
}

// Unsubscribe closes the Pub/Sub connection; ch is closed once its reader
// goroutine drains.
func (b *RedisBroker) Unsubscribe(runID string, ch chan model.ProgressEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

// Publish queues evt and returns at once. Epoch events are dropped when the
// queue is full; run.done waits for room up to redisSendTimeout.
func (b *RedisBroker) Publish(runID string, evt model.ProgressEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	msg := redisMessage{runID: runID, payload: data}
	if evt.Type != model.EventDone {
		select {
		case b.out <- msg:
		case <-b.stop:
		default:
			b.log.Debug().Str("run_id", runID).Msg("redis publish queue full; event dropped")
		}
		return
	}
	t := time.NewTimer(redisSendTimeout)
	defer t.Stop()
	select {
	case b.out <- msg:
	case <-b.stop:
	case <-t.C:
		b.log.Warn().Str("run_id", runID).Msg("redis publish queue full; run.done dropped")
	}
}

func (b *RedisBroker) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.out:
			ctx, cancel := context.WithTimeout(context.Background(), redisSendTimeout)
			if err := b.rdb.Publish(ctx, b.chanName(msg.runID), msg.payload).Err(); err != nil {
				b.log.Warn().Err(err).Str("run_id", msg.runID).Msg("redis publish")
			}
			cancel()
		case <-b.stop:
			return
		}
	}
}

// Close stops the publish loop, dropping queued events, and closes the client.
func (b *RedisBroker) Close() error {
	b.closeOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
	return b.rdb.Close()
}

func (b *RedisBroker) chanName(runID string) string { return b.prefix + ":" + runID }
