// Package store persists named collections of JSON records.
//
// Each collection is one JSON array guarded by a version stamp. Writers pass
// the version they read; a stale version is rejected with ErrVersionConflict
// so concurrent read-modify-write cycles cannot silently drop each other's
// changes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Collection names.
const (
	Users          = "users"
	Friendships    = "friendships"
	FriendRequests = "friend_requests"
	Homework       = "homework"
	CustomTopics   = "custom_topics"
)

const maxUpdateAttempts = 3

var (
	// ErrVersionConflict is returned when a write carries a stale version.
	ErrVersionConflict = errors.New("collection version conflict")
	// ErrNoChange lets an Update callback skip the write.
	ErrNoChange = errors.New("no change")
)

// Snapshot is the raw content of a collection. Version 0 means the
// collection has never been written.
type Snapshot struct {
	Data    []byte
	Version int64
}

// Store reads and writes whole collections.
type Store interface {
	Read(ctx context.Context, collection string) (Snapshot, error)
	// Write replaces the collection if its current version equals version
	// and returns the new version.
	Write(ctx context.Context, collection string, data []byte, version int64) (int64, error)
}

// Load decodes a collection into records. Corrupted content is logged and
// treated as an empty collection.
func Load[T any](ctx context.Context, s Store, collection string) ([]T, int64, error) {
	snap, err := s.Read(ctx, collection)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", collection, err)
	}
	if len(snap.Data) == 0 {
		return []T{}, snap.Version, nil
	}

	var items []T
	if err := json.Unmarshal(snap.Data, &items); err != nil {
		slog.Warn("discarding corrupted collection",
			"collection", collection,
			"version", snap.Version,
			"error", err,
		)
		return []T{}, snap.Version, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, snap.Version, nil
}

// Update runs a read-modify-write cycle on a collection. fn receives the
// current records and returns the records to store; returning ErrNoChange
// ends the cycle without writing. The cycle is retried when another writer
// got in first.
func Update[T any](ctx context.Context, s Store, collection string, fn func([]T) ([]T, error)) error {
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		items, version, err := Load[T](ctx, s, collection)
		if err != nil {
			return err
		}

		out, err := fn(items)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}
		if out == nil {
			out = []T{}
		}

		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", collection, err)
		}

		_, err = s.Write(ctx, collection, data, version)
		if errors.Is(err, ErrVersionConflict) {
			slog.Debug("collection changed during update, retrying",
				"collection", collection,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", collection, err)
		}
		return nil
	}
	return fmt.Errorf("update %s: %w", collection, ErrVersionConflict)
}
