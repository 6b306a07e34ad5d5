package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
)

const (
	// payloadField is the stream entry field holding the JSON envelope.
	payloadField = "payload"

	producerLinger = 500 * time.Millisecond
	producerBatch  = 100
	producerMaxBuf = 100000
)

// Producer accepts side-effect messages for asynchronous delivery. Enqueue
// returns once the message is in the local buffer, which is not a durability
// guarantee; callers that need one must Flush and treat a flush error as an
// enqueue error.
type Producer interface {
	Enqueue(ctx context.Context, topic string, msg Message) error
	Flush(ctx context.Context) error
	Close() error
}

type bufferedEntry struct {
	topic   string
	payload []byte
}

type producer struct {
	log *logger.Logger
	rdb *goredis.Client

	mu  sync.Mutex
	buf []bufferedEntry

	flushReq chan chan error
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewProducer(log *logger.Logger, rdb *goredis.Client) (Producer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}

	p := &producer{
		log:      log.With("service", "QueueProducer"),
		rdb:      rdb,
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

func (p *producer) Enqueue(ctx context.Context, topic string, msg Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
		return fmt.Errorf("queue producer closed")
	default:
	}

	if len(p.buf) >= producerMaxBuf {
		return fmt.Errorf("%w: producer buffer full", apperr.ErrTransient)
	}
	p.buf = append(p.buf, bufferedEntry{topic: topic, payload: raw})
	return nil
}

// Flush synchronously delivers everything currently buffered to the broker.
func (p *producer) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case p.flushReq <- reply:
	case <-p.done:
		return p.deliver(context.Background())
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *producer) Close() error {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return nil
	default:
		close(p.done)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return p.deliver(context.Background())
}

func (p *producer) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(producerLinger)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.deliver(context.Background()); err != nil {
				p.log.Warn("Background delivery failed, messages kept buffered", "error", err)
			}
		case reply := <-p.flushReq:
			reply <- p.deliver(context.Background())
		}
	}
}

// deliver drains the buffer into the streams with one pipeline. Buffer order is
// preserved, so producer order per topic is consumer order. On failure the
// batch is put back at the front of the buffer for the next attempt.
func (p *producer) deliver(ctx context.Context) error {
	p.mu.Lock()
	batch := p.buf
	p.buf = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	for start := 0; start < len(batch); start += producerBatch {
		end := start + producerBatch
		if end > len(batch) {
			end = len(batch)
		}

		pipe := p.rdb.Pipeline()
		for _, entry := range batch[start:end] {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: entry.topic,
				Values: map[string]any{payloadField: string(entry.payload)},
			})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			p.mu.Lock()
			p.buf = append(batch[start:], p.buf...)
			p.mu.Unlock()
			return fmt.Errorf("%w: broker delivery failed: %v", apperr.ErrTransient, err)
		}
	}
	return nil
}
