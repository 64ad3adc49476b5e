package broker

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Broker for tests and single-node development. It
// mirrors Redis semantics closely enough for every call site: lazy key
// expiry, FIFO lists, glob Keys. BlockPop polls instead of parking on a
// condition variable; at test scale the 5ms interval is invisible.
type Memory struct {
	mu      sync.Mutex
	strings map[string]string
	expiry  map[string]time.Time
	lists   map[string][]string
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
}

func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]string),
		expiry:  make(map[string]time.Time),
		lists:   make(map[string][]string),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
	}
}

func (b *Memory) Ping(ctx context.Context) error { return nil }

// expireLocked drops the key if its TTL has lapsed. Caller holds mu.
func (b *Memory) expireLocked(key string) {
	if at, ok := b.expiry[key]; ok && time.Now().After(at) {
		delete(b.strings, key)
		delete(b.lists, key)
		delete(b.hashes, key)
		delete(b.zsets, key)
		delete(b.expiry, key)
	}
}

func (b *Memory) Push(ctx context.Context, queue, val string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	// LPush semantics: newest at the head, popped from the tail
	b.lists[queue] = append([]string{val}, b.lists[queue]...)
	return nil
}

func (b *Memory) popLocked(queues []string) (string, string, bool) {
	for _, q := range queues {
		l := b.lists[q]
		if len(l) == 0 {
			continue
		}
		val := l[len(l)-1]
		b.lists[q] = l[:len(l)-1]
		return q, val, true
	}
	return "", "", false
}

func (b *Memory) BlockPop(ctx context.Context, timeout time.Duration, queues ...string) (string, string, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		q, v, ok := b.popLocked(queues)
		b.mu.Unlock()
		if ok {
			return q, v, nil
		}
		if time.Now().After(deadline) {
			return "", "", ErrNotFound
		}
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (b *Memory) Len(ctx context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.lists[queue])), nil
}

func (b *Memory) Remove(ctx context.Context, queue, val string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var kept []string
	var removed int64
	for _, v := range b.lists[queue] {
		if v == val {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	b.lists[queue] = kept
	return removed, nil
}

func (b *Memory) List(ctx context.Context, queue string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lists[queue]))
	copy(out, b.lists[queue])
	return out, nil
}

func (b *Memory) Get(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(key)
	v, ok := b.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (b *Memory) Set(ctx context.Context, key, val string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strings[key] = val
	if ttl > 0 {
		b.expiry[key] = time.Now().Add(ttl)
	} else {
		delete(b.expiry, key)
	}
	return nil
}

func (b *Memory) SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(key)
	if _, ok := b.strings[key]; ok {
		return false, nil
	}
	b.strings[key] = val
	if ttl > 0 {
		b.expiry[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (b *Memory) Del(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.strings, k)
		delete(b.lists, k)
		delete(b.hashes, k)
		delete(b.zsets, k)
		delete(b.expiry, k)
	}
	return nil
}

func (b *Memory) Incr(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(key)
	n, _ := strconv.ParseInt(b.strings[key], 10, 64)
	n++
	b.strings[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (b *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (b *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	match := func(k string) {
		b.expireLocked(k)
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for k := range b.strings {
		match(k)
	}
	for k := range b.hashes {
		match(k)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Memory) HSet(ctx context.Context, key string, fields map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hashes[key]
	if !ok {
		h = make(map[string]string)
		b.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (b *Memory) HGet(ctx context.Context, key, field string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(key)
	v, ok := b.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (b *Memory) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(key)
	out := make(map[string]string, len(b.hashes[key]))
	for k, v := range b.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (b *Memory) ZAdd(ctx context.Context, key string, score float64, member string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	z, ok := b.zsets[key]
	if !ok {
		z = make(map[string]float64)
		b.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (b *Memory) ZPopDue(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	type entry struct {
		member string
		score  float64
	}
	var due []entry
	for m, s := range b.zsets[key] {
		if s <= max {
			due = append(due, entry{m, s})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].score < due[j].score })
	if int64(len(due)) > limit {
		due = due[:limit]
	}
	out := make([]string, 0, len(due))
	for _, e := range due {
		delete(b.zsets[key], e.member)
		out = append(out, e.member)
	}
	return out, nil
}

func (b *Memory) ZCard(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.zsets[key])), nil
}

