package symdiff

import "sync"

// Diff compares two versions. It returns the removed records followed by
// the added ones, each group in SymbolID order with one record per
// occurrence, and the number of ids present in both tables. Ids present in
// both are not compared further.
func Diff(prev, next Table) (records []Record, common int) {
	for _, id := range prev.IDs() {
		if _, ok := next[id]; ok {
			common++
			continue
		}
		for _, occ := range prev[id] {
			records = append(records, Record{Action: Remove, ID: id, Occurrence: occ})
		}
	}
	for _, id := range next.IDs() {
		if _, ok := prev[id]; ok {
			continue
		}
		for _, occ := range next[id] {
			records = append(records, Record{Action: Add, ID: id, Occurrence: occ})
		}
	}
	return records, common
}

// Window holds the previous version's table and the one being loaded.
type Window struct {
	mu   sync.Mutex
	prev Table
	next Table
}

// NewWindow returns a window whose previous version is empty.
func NewWindow() *Window {
	return &Window{prev: Table{}, next: Table{}}
}

// Load adds an occurrence to the version being loaded.
func (w *Window) Load(id SymbolID, occ Occurrence) {
	w.mu.Lock()
	w.next.Add(id, occ)
	w.mu.Unlock()
}

// Diff compares the loaded version with the previous one.
func (w *Window) Diff() ([]Record, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Diff(w.prev, w.next)
}

// Slide makes the loaded version the previous one and starts an empty one.
func (w *Window) Slide() {
	w.mu.Lock()
	w.prev, w.next = w.next, Table{}
	w.mu.Unlock()
}

// Sizes reports the number of distinct symbols in each slot.
func (w *Window) Sizes() (prev, next int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prev), len(w.next)
}
