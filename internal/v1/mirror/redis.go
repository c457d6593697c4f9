// Package mirror persists room metadata to a shared Redis so that metadata
// survives restarts and is visible across hub instances. The mirror is never
// authoritative for live connection state: every operation is best-effort and
// the caller falls back to the in-memory registry when Redis is slow or down.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khanmassab/flixers/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// ErrNotFound is returned by LoadRoom when no entry exists for the room id.
var ErrNotFound = errors.New("room metadata not found")

// metaTTL bounds how long an entry outlives its last write. It exceeds the
// default empty-grace window so a reconnect within the grace period can still
// rehydrate metadata after a hub restart.
const metaTTL = 48 * time.Hour

// RoomMeta is the durable subset of a room record.
type RoomMeta struct {
	RoomID             string  `json:"roomId"`
	EncryptionRequired bool    `json:"encryptionRequired"`
	VideoURL           string  `json:"videoUrl,omitempty"`
	TitleID            string  `json:"titleId,omitempty"`
	InitialTime        float64 `json:"initialTime,omitempty"`
	CreatedAt          int64   `json:"createdAt"`
}

// Store handles all interaction with the Redis mirror.
type Store struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewStore creates a Redis-backed mirror with a circuit breaker that degrades
// to no-ops when Redis misbehaves.
func NewStore(addr, password string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "mirror",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis metadata mirror", "addr", addr)
	return &Store{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

func roomKey(roomID string) string {
	return fmt.Sprintf("watchparty:room:%s", roomID)
}

// SaveRoom writes the full metadata record for a room.
func (s *Store) SaveRoom(ctx context.Context, meta RoomMeta) error {
	if s == nil || s.client == nil {
		return nil // Mirror disabled, in-memory only
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal room metadata: %w", err)
		}
		return nil, s.client.Set(ctx, roomKey(meta.RoomID), data, metaTTL).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Mirror circuit breaker open: dropping room save", "roomId", meta.RoomID)
			return nil // Graceful degradation
		}
		slog.Error("Mirror SaveRoom failed", "roomId", meta.RoomID, "error", err)
		return err
	}
	return nil
}

// LoadRoom reads the metadata record for a room. Returns ErrNotFound when the
// mirror has no entry, which callers treat the same as mirror-disabled.
func (s *Store) LoadRoom(ctx context.Context, roomID string) (*RoomMeta, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotFound
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		var meta RoomMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room metadata: %w", err)
		}
		return &meta, nil
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Mirror circuit breaker open: skipping room load", "roomId", roomID)
			return nil, ErrNotFound // Fall back to in-memory registry
		}
		slog.Error("Mirror LoadRoom failed", "roomId", roomID, "error", err)
		return nil, err
	}
	return res.(*RoomMeta), nil
}

// UpdateVideoState opportunistically records the latest advertised playback
// position for new-joiner hydration. Missing entries are ignored: the room
// may exist only in another instance's memory.
func (s *Store) UpdateVideoState(ctx context.Context, roomID, videoURL, titleID string, videoTime float64) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		meta, err := s.loadLocked(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if videoURL != "" {
			meta.VideoURL = videoURL
		}
		if titleID != "" {
			meta.TitleID = titleID
		}
		meta.InitialTime = videoTime

		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal room metadata: %w", err)
		}
		return nil, s.client.Set(ctx, roomKey(roomID), data, metaTTL).Err()
	})

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Mirror circuit breaker open: dropping video state update", "roomId", roomID)
			return nil
		}
		slog.Error("Mirror UpdateVideoState failed", "roomId", roomID, "error", err)
		return err
	}
	return nil
}

// loadLocked fetches a record without going through the breaker; used inside
// breaker-wrapped read-modify-write operations.
func (s *Store) loadLocked(ctx context.Context, roomID string) (*RoomMeta, error) {
	data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta RoomMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room metadata: %w", err)
	}
	return &meta, nil
}

// DeleteRoom removes the metadata record after a room is deleted.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, roomKey(roomID)).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Mirror circuit breaker open: skipping room delete", "roomId", roomID)
			return nil
		}
		slog.Error("Mirror DeleteRoom failed", "roomId", roomID, "error", err)
		return err
	}
	return nil
}

// Ping checks Redis connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // Mirror disabled, nothing to check
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
