package chatbot

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/sharpie78/nova/api"
)

// CachedChat is a saved chat held in memory
type CachedChat struct {
	ID       string
	Messages []api.Message
	LoadedAt time.Time
}

// ChatCache keeps recently loaded saved chats, bounded by their encoded size.
// A nil *ChatCache caches nothing.
type ChatCache struct {
	mu       sync.Mutex
	maxBytes int
	curBytes int
	cache    map[string]*list.Element
	lru      *list.List
}

type cacheEntry struct {
	chat  *CachedChat
	bytes int
}

// NewChatCache creates a new LRU chat cache
func NewChatCache(maxBytes int) *ChatCache {
	return &ChatCache{
		maxBytes: maxBytes,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func estimateBytes(msgs []api.Message) int {
	data, _ := json.Marshal(msgs)
	return len(data)
}

// Get returns a copy of the cached messages for id
func (c *ChatCache) Get(id string) ([]api.Message, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[id]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	msgs := elem.Value.(*cacheEntry).chat.Messages
	return append([]api.Message(nil), msgs...), true
}

// Put caches msgs under id, evicting the least recently used chats as needed.
// A chat larger than the whole cache is not stored.
func (c *ChatCache) Put(id string, msgs []api.Message) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bytes := estimateBytes(msgs)
	c.remove(id)
	if bytes > c.maxBytes {
		return
	}
	c.evictIfNeeded(bytes)

	entry := &cacheEntry{
		chat: &CachedChat{
			ID:       id,
			Messages: append([]api.Message(nil), msgs...),
			LoadedAt: time.Now(),
		},
		bytes: bytes,
	}
	c.cache[id] = c.lru.PushFront(entry)
	c.curBytes += bytes
}

// Remove drops id from the cache
func (c *ChatCache) Remove(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.remove(id)
	c.mu.Unlock()
}

// Len returns the number of cached chats
func (c *ChatCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *ChatCache) remove(id string) {
	elem, ok := c.cache[id]
	if !ok {
		return
	}
	c.lru.Remove(elem)
	delete(c.cache, id)
	c.curBytes -= elem.Value.(*cacheEntry).bytes
}

func (c *ChatCache) evictIfNeeded(additionalBytes int) {
	for c.curBytes+additionalBytes > c.maxBytes && c.lru.Len() > 0 {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*cacheEntry).chat.ID)
	}
}
