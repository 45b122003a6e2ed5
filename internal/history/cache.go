// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/chatterm/internal/model"
)

// Endpoint is the backend path cached entries belong to. Part of the key
// so future list endpoints can share the cache without colliding.
const Endpoint = "/chat/history"

// Key identifies one cached page of a user's chat list.
type Key struct {
	Endpoint string
	UserID   string
	Cursor   string // pagination cursor; "" for the first page
}

// entry is one cached page with its fetch time.
type entry struct {
	chats     []model.ChatSummary
	fetchedAt time.Time
}

// =============================================================================
// CACHE
// =============================================================================

// Cache is a keyed, revalidate-on-demand cache of chat lists, scoped by
// user id. Entries are only ever written through Put and destroyed through
// Invalidate; no component writes computed data into it directly.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]entry

	bus   *Bus
	store *Store // optional persistent mirror
}

// NewCache creates a cache that announces invalidations on bus.
func NewCache(bus *Bus) *Cache {
	return &Cache{
		entries: make(map[Key]entry),
		bus:     bus,
	}
}

// WithStore attaches a persistent mirror. Mirror failures are logged and
// otherwise ignored; the mirror is an optimization, not a source of truth.
func (c *Cache) WithStore(store *Store) *Cache {
	c.store = store
	return c
}

// Get returns the cached page for key, if present.
func (c *Cache) Get(key Key) ([]model.ChatSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.chats, true
}

// Stale returns the persisted mirror of key from a previous run, for
// instant rendering while a revalidation is in flight. Returns false when
// no mirror is configured or nothing was persisted.
func (c *Cache) Stale(key Key) ([]model.ChatSummary, bool) {
	if c.store == nil {
		return nil, false
	}
	chats, ok, err := c.store.Get(key)
	if err != nil {
		log.Printf("HISTORY_MIRROR_READ_FAILED | err=%v", err)
		return nil, false
	}
	return chats, ok
}

// Put stores a freshly fetched page.
func (c *Cache) Put(key Key, chats []model.ChatSummary) {
	c.mu.Lock()
	c.entries[key] = entry{chats: chats, fetchedAt: time.Now()}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Put(key, chats); err != nil {
			log.Printf("HISTORY_MIRROR_WRITE_FAILED | err=%v", err)
		}
	}
}

// GetOrFetch returns the cached page or fetches, caches and returns it.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch func(context.Context) ([]model.ChatSummary, error)) ([]model.ChatSummary, error) {
	if chats, ok := c.Get(key); ok {
		return chats, nil
	}
	chats, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Put(key, chats)
	return chats, nil
}

// Invalidate discards every entry belonging to userID, across all cursors,
// and broadcasts a "history changed" event. Entries are destroyed whole,
// never patched, so every open view refetches from the backend.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	for key := range c.entries {
		if key.UserID == userID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeleteUser(userID); err != nil {
			log.Printf("HISTORY_MIRROR_DELETE_FAILED | err=%v", err)
		}
	}

	if c.bus != nil {
		c.bus.Publish()
	}
}

// Len reports the number of live entries. Used by tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
