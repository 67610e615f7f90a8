package object

import "sync"

// defaultCacheBytes bounds the in-memory decoded-object cache. The teacher
// has no equivalent cache; this is new, sized to keep a few thousand
// typical commit/tree objects resident without growing unbounded on a
// large repack or gc walk.
const defaultCacheBytes = 32 << 20 // 32 MiB

// objectCache is a bounded, LRU-evicted cache of decoded (kind, payload)
// pairs keyed by OID. It exists purely to avoid re-inflating the same
// loose or packed object repeatedly within one process lifetime.
type objectCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	entries  map[Hash]*cacheEntry
	order    *list
}

type cacheEntry struct {
	hash    Hash
	kind    ObjectType
	payload []byte
	node    *listNode
}

// list is a minimal intrusive doubly linked list used for LRU ordering.
// A generic container isn't warranted for a single bounded cache, and the
// corpus shows hand-rolled linked structures (pack delta chains) rather
// than reaching for a container library for this kind of bookkeeping.
type list struct {
	root listNode
}

type listNode struct {
	prev, next *listNode
	hash       Hash
}

func newList() *list {
	l := &list{}
	l.root.prev = &l.root
	l.root.next = &l.root
	return l
}

func (l *list) pushFront(h Hash) *listNode {
	n := &listNode{hash: h}
	n.next = l.root.next
	n.prev = &l.root
	l.root.next.prev = n
	l.root.next = n
	return n
}

func (l *list) moveToFront(n *listNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = l.root.next
	n.prev = &l.root
	l.root.next.prev = n
	l.root.next = n
}

func (l *list) remove(n *listNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (l *list) back() *listNode {
	if l.root.prev == &l.root {
		return nil
	}
	return l.root.prev
}

func newObjectCache(capacity int64) *objectCache {
	return &objectCache{
		capacity: capacity,
		entries:  make(map[Hash]*cacheEntry),
		order:    newList(),
	}
}

func (c *objectCache) has(h Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[h]
	return ok
}

func (c *objectCache) get(h Hash) (ObjectType, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[h]
	if !ok {
		return "", nil, false
	}
	c.order.moveToFront(e.node)
	return e.kind, e.payload, true
}

func (c *objectCache) put(h Hash, kind ObjectType, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[h]; ok {
		c.order.moveToFront(e.node)
		return
	}

	cost := int64(len(payload))
	if cost > c.capacity {
		// Too large to cache; served straight from disk every time.
		return
	}

	for c.size+cost > c.capacity {
		tail := c.order.back()
		if tail == nil {
			break
		}
		evicted := c.entries[tail.hash]
		c.order.remove(tail)
		delete(c.entries, tail.hash)
		c.size -= int64(len(evicted.payload))
	}

	node := c.order.pushFront(h)
	c.entries[h] = &cacheEntry{hash: h, kind: kind, payload: payload, node: node}
	c.size += cost
}
