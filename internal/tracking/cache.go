// Package tracking remembers which identity was resolved for a face box so
// consecutive frames of the same session can skip recognition.
package tracking

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// ErrClosed is returned when a cache is used after its session ended.
var ErrClosed = errors.New("tracking cache is closed")

// Entry is a tracked face with the identity it resolved to.
type Entry struct {
	Box        facematch.Box
	StudentID  string
	Name       string
	Confidence float64
	LastSeen   time.Time
}

// Cache holds the live entries of one session. Entries are kept in a list
// ordered by LastSeen so pruning only touches expired entries. Frames of one
// session may finish out of order, so entries are placed by timestamp rather
// than appended.
type Cache struct {
	mu           sync.Mutex
	entries      *list.List // of *Entry, oldest first
	ttl          time.Duration
	iouThreshold float64
	lastUsed     time.Time
	closed       bool
}

// NewCache creates an empty cache. Entries older than ttl are evicted and a
// box matches an entry only when their IoU is strictly above iouThreshold.
func NewCache(ttl time.Duration, iouThreshold float64) *Cache {
	return &Cache{
		entries:      list.New(),
		ttl:          ttl,
		iouThreshold: iouThreshold,
	}
}

// Prune drops entries not seen for longer than the TTL and returns how many were dropped.
func (c *Cache) Prune(now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	c.touch(now)
	return c.pruneLocked(now), nil
}

func (c *Cache) pruneLocked(now time.Time) int {
	removed := 0
	for e := c.entries.Front(); e != nil; e = c.entries.Front() {
		if now.Sub(e.Value.(*Entry).LastSeen) <= c.ttl {
			break
		}
		c.entries.Remove(e)
		removed++
	}
	return removed
}

func (c *Cache) touch(now time.Time) {
	if now.After(c.lastUsed) {
		c.lastUsed = now
	}
}

// expired reports whether entry is older than the TTL at now.
func (c *Cache) expired(entry *Entry, now time.Time) bool {
	return now.Sub(entry.LastSeen) > c.ttl
}

// place moves e behind the last entry seen no later than it, keeping the
// list sorted by LastSeen.
func (c *Cache) place(e *list.Element) {
	seen := e.Value.(*Entry).LastSeen
	for mark := c.entries.Back(); mark != nil; mark = mark.Prev() {
		if mark == e {
			continue
		}
		if !mark.Value.(*Entry).LastSeen.After(seen) {
			c.entries.MoveAfter(e, mark)
			return
		}
	}
	c.entries.MoveToFront(e)
}

// best returns the live list element with the highest IoU above the threshold.
func (c *Cache) best(box facematch.Box, now time.Time) *list.Element {
	var found *list.Element
	bestIoU := c.iouThreshold
	for e := c.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*Entry)
		if c.expired(entry, now) {
			continue
		}
		if iou := facematch.ComputeIoU(box, entry.Box); iou > bestIoU {
			found = e
			bestIoU = iou
		}
	}
	return found
}

// Lookup finds the entry overlapping box the most. On a hit the entry takes
// the new box and timestamp and a copy is returned.
func (c *Cache) Lookup(box facematch.Box, now time.Time) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Entry{}, false, ErrClosed
	}
	c.touch(now)

	e := c.best(box, now)
	if e == nil {
		return Entry{}, false, nil
	}
	entry := e.Value.(*Entry)
	entry.Box = box
	// A late frame never moves an entry back in time.
	if now.After(entry.LastSeen) {
		entry.LastSeen = now
		c.place(e)
	}
	return *entry, true, nil
}

// Insert stores a resolved identity for box. If a live entry already claims
// the region, the existing entry wins and Insert reports false.
func (c *Cache) Insert(box facematch.Box, studentID, name string, confidence float64, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if studentID == "" {
		return false, nil
	}
	c.touch(now)
	if c.best(box, now) != nil {
		return false, nil
	}
	c.place(c.entries.PushBack(&Entry{
		Box:        box,
		StudentID:  studentID,
		Name:       name,
		Confidence: confidence,
		LastSeen:   now,
	}))
	return true, nil
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Close empties the cache and rejects any further use.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries.Init()
}

func (c *Cache) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}
