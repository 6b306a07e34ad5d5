package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
)

const (
	// ConsumerGroup is shared by every consumer replica; the broker splits each
	// topic's messages across the group's members.
	ConsumerGroup = "msg-queue-for-external-services"

	pollBlock      = 2 * time.Second
	pollCount      = 10
	reclaimEvery   = 10 * time.Second
	reclaimMinIdle = 30 * time.Second
	reclaimCount   = 100
	errorBackoff   = time.Second

	// maxDeliveries bounds redelivery of a permanently failing message. Past the
	// budget the message moves to the topic's dead-letter stream instead of
	// cycling forever.
	maxDeliveries = 5
)

// Consumer drains the offload topics and executes each message's side effect.
// Delivery is at least once: a message is acknowledged only after its executor
// succeeds, and unacknowledged messages are reclaimed and retried. One failing
// message never halts the loop.
type Consumer struct {
	log       *logger.Logger
	rdb       *goredis.Client
	executors *Executors
	name      string
	topics    []string

	minIdle    time.Duration
	deliveries int64
}

func NewConsumer(log *logger.Logger, rdb *goredis.Client, executors *Executors) (*Consumer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if executors == nil {
		return nil, fmt.Errorf("executors required")
	}

	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "consumer"
	}
	name := host + "-" + uuid.NewString()[:8]

	return &Consumer{
		log:        log.With("service", "QueueConsumer", "consumer", name),
		rdb:        rdb,
		executors:  executors,
		name:       name,
		topics:     Topics(),
		minIdle:    reclaimMinIdle,
		deliveries: maxDeliveries,
	}, nil
}

// Run blocks until ctx is cancelled. Group creation failure is the only fatal
// startup condition; after that every per-message error is isolated and logged.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroups(ctx); err != nil {
		return fmt.Errorf("Failed to create consumer groups: %w", err)
	}
	c.log.Info("Queue consumer started", "group", ConsumerGroup, "topics", c.topics)

	streams := make([]string, 0, len(c.topics)*2)
	streams = append(streams, c.topics...)
	for range c.topics {
		streams = append(streams, ">")
	}

	lastReclaim := time.Time{}

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Queue consumer stopping")
			return nil
		default:
		}

		if time.Since(lastReclaim) >= reclaimEvery {
			c.reclaim(ctx)
			lastReclaim = time.Now()
		}

		res, err := c.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    ConsumerGroup,
			Consumer: c.name,
			Streams:  streams,
			Count:    pollCount,
			Block:    pollBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.log.Warn("Poll failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.handle(ctx, stream.Stream, msg)
			}
		}
	}
}

func (c *Consumer) ensureGroups(ctx context.Context) error {
	for _, topic := range c.topics {
		err := c.rdb.XGroupCreateMkStream(ctx, topic, ConsumerGroup, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("topic %q: %w", topic, err)
		}
	}
	return nil
}

// handle executes one delivery. Success acknowledges the message; failure
// leaves it pending so the reclaim pass redelivers it.
func (c *Consumer) handle(ctx context.Context, topic string, xmsg goredis.XMessage) {
	raw, ok := xmsg.Values[payloadField].(string)
	if !ok {
		// No payload to ever decode; retrying cannot help.
		c.log.Error("Message has no payload field, dead-lettering", "topic", topic, "id", xmsg.ID)
		c.deadLetter(ctx, topic, xmsg)
		return
	}

	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		c.log.Error("Undecodable message, dead-lettering", "topic", topic, "id", xmsg.ID, "error", err)
		c.deadLetter(ctx, topic, xmsg)
		return
	}

	if err := c.executors.Execute(ctx, msg); err != nil {
		if errors.Is(err, apperr.ErrFatalOperation) {
			c.log.Error("FATAL: unrecognized operation, producer/consumer version skew", "topic", topic, "id", xmsg.ID, "operation", msg.Operation)
		} else {
			c.log.Warn("Executor failed, message left pending for redelivery", "topic", topic, "id", xmsg.ID, "operation", msg.Operation, "error", err)
		}
		return
	}

	if err := c.rdb.XAck(ctx, topic, ConsumerGroup, xmsg.ID).Err(); err != nil {
		c.log.Warn("Ack failed, message may be redelivered", "topic", topic, "id", xmsg.ID, "error", err)
	}
}

// reclaim takes over messages whose consumer died or whose executor keeps
// failing. Entries past the delivery budget go to the dead-letter stream.
func (c *Consumer) reclaim(ctx context.Context) {
	for _, topic := range c.topics {
		pending, err := c.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream: topic,
			Group:  ConsumerGroup,
			Idle:   c.minIdle,
			Start:  "-",
			End:    "+",
			Count:  reclaimCount,
		}).Result()
		if err != nil || len(pending) == 0 {
			continue
		}

		exhausted := map[string]bool{}
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
			if p.RetryCount >= c.deliveries {
				exhausted[p.ID] = true
			}
		}

		claimed, err := c.rdb.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   topic,
			Group:    ConsumerGroup,
			Consumer: c.name,
			MinIdle:  c.minIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			c.log.Warn("Claim failed", "topic", topic, "error", err)
			continue
		}

		for _, xmsg := range claimed {
			if exhausted[xmsg.ID] {
				c.log.Error("Delivery budget exhausted, dead-lettering", "topic", topic, "id", xmsg.ID, "budget", c.deliveries)
				c.deadLetter(ctx, topic, xmsg)
				continue
			}
			c.handle(ctx, topic, xmsg)
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, xmsg goredis.XMessage) {
	err := c.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: DeadLetterTopic(topic),
		Values: xmsg.Values,
	}).Err()
	if err != nil {
		// Keep the message pending rather than lose it.
		c.log.Error("Dead-letter append failed, message stays pending", "topic", topic, "id", xmsg.ID, "error", err)
		return
	}
	if err := c.rdb.XAck(ctx, topic, ConsumerGroup, xmsg.ID).Err(); err != nil {
		c.log.Warn("Ack after dead-letter failed", "topic", topic, "id", xmsg.ID, "error", err)
	}
}
