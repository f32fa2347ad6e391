package keys

import (
	"strconv"
	"sync"
)

// Key is one credential plus where it came from. String never exposes the
// secret so a Key can be logged directly.
type Key struct {
	Pool   string
	Slot   int // 1-based configuration slot
	Secret string
}

func (k Key) String() string {
	if k.Pool == "" {
		return "override"
	}
	return k.Pool + "#" + strconv.Itoa(k.Slot)
}

// Pool is an immutable credential list with a round-robin cursor. Cursor
// moves are serialized so concurrent callers never draw the same position
// twice in one lap.
type Pool struct {
	name string
	keys []Key

	mu  sync.Mutex
	idx int
}

// NewPool copies keys into a new Pool with its cursor at the first key.
func NewPool(name string, keys []Key) *Pool {
	cp := make([]Key, len(keys))
	copy(cp, keys)
	return &Pool{name: name, keys: cp}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Len returns the number of keys in the pool.
func (p *Pool) Len() int { return len(p.keys) }

// Next returns the key under the cursor and advances it, wrapping at the end.
// It must not be called on an empty pool.
func (p *Pool) Next() Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := p.keys[p.idx]
	p.idx = (p.idx + 1) % len(p.keys)
	return k
}

// Lap starts one pass over every key in rotation order, beginning at the
// current cursor. The first key is claimed atomically, so concurrent laps
// start on different keys. Each later draw advances the shared cursor once,
// and the lap itself yields each key exactly once.
func (p *Pool) Lap() *Lap {
	if len(p.keys) == 0 {
		return &Lap{pool: p}
	}
	p.mu.Lock()
	start := p.idx
	p.idx = (p.idx + 1) % len(p.keys)
	p.mu.Unlock()
	return &Lap{pool: p, start: start}
}

// advance moves the shared cursor by one.
func (p *Pool) advance() {
	p.mu.Lock()
	p.idx = (p.idx + 1) % len(p.keys)
	p.mu.Unlock()
}

// Lap is a single request's pass over a Pool. It is not safe for concurrent use.
type Lap struct {
	pool  *Pool
	start int
	drawn int
}

// Next returns the next key of the lap, or false once every key was drawn.
func (l *Lap) Next() (Key, bool) {
	n := l.pool.Len()
	if l.drawn >= n {
		return Key{}, false
	}
	k := l.pool.keys[(l.start+l.drawn)%n]
	if l.drawn > 0 {
		l.pool.advance()
	}
	l.drawn++
	return k, true
}
