package strategy

import (
	"sort"
	"sync"
)

// targetEntry holds all strategies registered against one target account.
type targetEntry struct {
	Buys  map[string]BuyStrategy  `json:"buys"`
	Sells map[string]SellStrategy `json:"sells"`
}

func (e *targetEntry) empty() bool {
	return len(e.Buys) == 0 && len(e.Sells) == 0
}

// TableState is the serializable snapshot of a Table, used by the
// persistence boundary.
type TableState map[string]targetEntry

// Table maps target accounts to their registered strategies. All
// mutations go through Add/Remove so callers never touch the maps
// directly; reads return copies.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*targetEntry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]*targetEntry)}
}

func (t *Table) entryLocked(target string) *targetEntry {
	e, ok := t.entries[target]
	if !ok {
		e = &targetEntry{
			Buys:  make(map[string]BuyStrategy),
			Sells: make(map[string]SellStrategy),
		}
		t.entries[target] = e
	}
	return e
}

// AddBuy registers a buy strategy. Returns false when (target, name)
// already exists; the table is unchanged in that case.
func (t *Table) AddBuy(target string, s BuyStrategy) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(target)
	if _, exists := e.Buys[s.Name]; exists {
		return false
	}
	e.Buys[s.Name] = s
	return true
}

// AddSell registers a sell strategy. Returns false on duplicate key.
func (t *Table) AddSell(target string, s SellStrategy) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryLocked(target)
	if _, exists := e.Sells[s.Name]; exists {
		return false
	}
	e.Sells[s.Name] = s
	return true
}

// RemoveBuy deletes a buy strategy. Returns false when the key is absent.
// A target whose last strategy is removed disappears from the table.
func (t *Table) RemoveBuy(target, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[target]
	if !ok {
		return false
	}
	if _, exists := e.Buys[name]; !exists {
		return false
	}
	delete(e.Buys, name)
	if e.empty() {
		delete(t.entries, target)
	}
	return true
}

// RemoveSell deletes a sell strategy. Returns false when the key is absent.
func (t *Table) RemoveSell(target, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[target]
	if !ok {
		return false
	}
	if _, exists := e.Sells[name]; !exists {
		return false
	}
	delete(e.Sells, name)
	if e.empty() {
		delete(t.entries, target)
	}
	return true
}

// Get returns copies of the strategies registered for target.
func (t *Table) Get(target string) (buys []BuyStrategy, sells []SellStrategy) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[target]
	if !ok {
		return nil, nil
	}
	for _, s := range e.Buys {
		buys = append(buys, s)
	}
	for _, s := range e.Sells {
		sells = append(sells, s)
	}
	sort.Slice(buys, func(i, j int) bool { return buys[i].Name < buys[j].Name })
	sort.Slice(sells, func(i, j int) bool { return sells[i].Name < sells[j].Name })
	return buys, sells
}

// Targets returns the sorted set of accounts with at least one strategy.
// This is the desired watch set fed to the subscription manager.
func (t *Table) Targets() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for target := range t.entries {
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}

// Clear empties the table, stopping further matches during shutdown.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*targetEntry)
}

// Snapshot returns a deep copy suitable for serialization.
func (t *Table) Snapshot() TableState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(TableState, len(t.entries))
	for target, e := range t.entries {
		cp := targetEntry{
			Buys:  make(map[string]BuyStrategy, len(e.Buys)),
			Sells: make(map[string]SellStrategy, len(e.Sells)),
		}
		for k, v := range e.Buys {
			cp.Buys[k] = v
		}
		for k, v := range e.Sells {
			cp.Sells[k] = v
		}
		out[target] = cp
	}
	return out
}

// Restore replaces the table contents with a previously saved state.
func (t *Table) Restore(state TableState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*targetEntry, len(state))
	for target, e := range state {
		cp := &targetEntry{
			Buys:  make(map[string]BuyStrategy, len(e.Buys)),
			Sells: make(map[string]SellStrategy, len(e.Sells)),
		}
		for k, v := range e.Buys {
			cp.Buys[k] = v
		}
		for k, v := range e.Sells {
			cp.Sells[k] = v
		}
		if !cp.empty() {
			t.entries[target] = cp
		}
	}
}
