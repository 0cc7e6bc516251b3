package sport

import "sync"

// MaxSensors is the slot capacity of one bus device.
const MaxSensors = 8

// Slot is one sensor table entry: a logical sensor ID and the current
// raw 32-bit value. Identity is the slot index, not the ID; nothing at
// this layer requires IDs to be unique across slots.
type Slot struct {
	ID    uint16
	Value uint32
}

// Table is a fixed-capacity round-robin registry of sensor values.
// Producers overwrite slots at any time while the poll loop consumes
// the next slot to report, so all access is serialized by a mutex.
type Table struct {
	lock   sync.Mutex
	slots  [MaxSensors]Slot
	active int
	cursor int
}

// SetActive fixes how many of the slots are live and rewinds the
// cursor. The caller owns range checking.
func (t *Table) SetActive(n int) {
	t.lock.Lock()
	t.active, t.cursor = n, 0
	t.lock.Unlock()
}

// Active returns the number of live slots.
func (t *Table) Active() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.active
}

// Set overwrites one slot. An out-of-range index panics via the array
// bound.
func (t *Table) Set(index int, id uint16, value uint32) {
	t.lock.Lock()
	t.slots[index] = Slot{ID: id, Value: value}
	t.lock.Unlock()
}

// Next returns the slot under the cursor and advances the cursor,
// wrapping over the live slots. ok is false when no slots are live.
func (t *Table) Next() (s Slot, ok bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.active == 0 {
		return Slot{}, false
	}
	s = t.slots[t.cursor]
	t.cursor = (t.cursor + 1) % t.active
	return s, true
}

// Snapshot copies the live slots for inspection.
func (t *Table) Snapshot() []Slot {
	t.lock.Lock()
	defer t.lock.Unlock()
	out := make([]Slot, t.active)
	copy(out, t.slots[:t.active])
	return out
}
