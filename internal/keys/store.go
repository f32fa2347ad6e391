// Package keys loads credential pools from process configuration and hands
// them out in round-robin order. Pools are read once at start-up and never
// change afterwards; only the rotation cursor inside each Pool mutates.
package keys

import (
	"strconv"
	"strings"
)

// LookupFunc resolves a configuration value by name. It matches os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Load reads up to maxCount slots named "<pool>_1" .. "<pool>_<maxCount>" and
// returns the non-empty values in slot order. Gaps are skipped. Load never
// fails; an unconfigured pool yields an empty slice.
func Load(lookup LookupFunc, pool string, maxCount int) []Key {
	if lookup == nil || pool == "" {
		return nil
	}
	var out []Key
	for slot := 1; slot <= maxCount; slot++ {
		v, ok := lookup(pool + "_" + strconv.Itoa(slot))
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, Key{Pool: pool, Slot: slot, Secret: v})
	}
	return out
}

// Store holds every configured Pool by name.
type Store struct {
	pools map[string]*Pool
}

// NewStore loads each named pool once using lookup.
func NewStore(lookup LookupFunc, maxCount int, names ...string) *Store {
	s := &Store{pools: make(map[string]*Pool, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := s.pools[n]; dup {
			continue
		}
		s.pools[n] = NewPool(n, Load(lookup, n, maxCount))
	}
	return s
}

// Pool returns the named pool. Unknown names yield an empty pool so callers
// only ever need to check Len.
func (s *Store) Pool(name string) *Pool {
	if s != nil {
		if p, ok := s.pools[name]; ok {
			return p
		}
	}
	return NewPool(name, nil)
}

// Sizes reports how many keys each pool holds, for diagnostics.
func (s *Store) Sizes() map[string]int {
	out := make(map[string]int, len(s.pools))
	for n, p := range s.pools {
		out[n] = p.Len()
	}
	return out
}
