// Package messaging mirrors ride state into Redis for the park's monitoring
// stack and accepts operator commands pushed onto a Redis list.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/types"
)

const (
	rideHash       = "ride"
	rideChannel    = "ride"
	commandList    = "ride:command"
	commandTimeout = 5 * time.Second
)

// CommandHandler receives a validated operator command name.
type CommandHandler func(name string) error

// RedisClient publishes ride state and telemetry, and listens for commands.
// It implements the orchestrator's TelemetryPublisher.
type RedisClient struct {
	client  *redis.Client
	log     *logger.Logger
	handler CommandHandler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisClient(addr, password string, db int, l *logger.Logger, handler CommandHandler) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		log:     l.WithTag("Redis"),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *RedisClient) Connect() error {
	r.log.Infof("connecting to Redis at %s", r.client.Options().Addr)
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("Redis connection failed: %w", err)
	}
	return nil
}

// StartListening starts the command list listener. Call after the control
// loop is running so commands always have somewhere to go.
func (r *RedisClient) StartListening() {
	r.wg.Add(1)
	go r.commandListener()
}

func (r *RedisClient) commandListener() {
	defer r.wg.Done()
	r.log.Infof("listening for commands on %s", commandList)

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			// Short BRPOP timeout so context cancellation is noticed.
			result, err := r.client.BRPop(r.ctx, commandTimeout, commandList).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if r.ctx.Err() != nil {
					return
				}
				r.log.Warnf("failed to read from %s: %v", commandList, err)
				continue
			}
			if len(result) < 2 {
				continue
			}
			cmd := result[1]
			r.log.Debugf("received command: %s", cmd)
			if err := r.handler(cmd); err != nil {
				r.log.Warnf("rejected command %q: %v", cmd, err)
			}
		}
	}
}

// PublishState writes the new state into the ride hash and notifies
// subscribers on the ride channel.
func (r *RedisClient) PublishState(state types.RideState) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, rideHash, "state", string(state))
	pipe.HSet(r.ctx, rideHash, "state:timestamp", time.Now().UTC().Format(time.RFC3339))
	pipe.Publish(r.ctx, rideChannel, "state")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish state: %w", err)
	}
	return nil
}

// PublishSnapshot writes the telemetry snapshot as JSON alongside the flat
// per-field entries the dashboards poll.
func (r *RedisClient) PublishSnapshot(snap types.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, rideHash, "snapshot", payload)
	pipe.HSet(r.ctx, rideHash, "motor:encoder", snap.Motor.Encoder)
	pipe.HSet(r.ctx, rideHash, "motor:speed", snap.Motor.Speed)
	pipe.HSet(r.ctx, rideHash, "motor:current", snap.Motor.Current)
	pipe.HSet(r.ctx, rideHash, "motor:status", snap.Motor.Status)
	pipe.HSet(r.ctx, rideHash, "faults", len(snap.Faults))
	pipe.Publish(r.ctx, rideChannel, "telemetry")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}
