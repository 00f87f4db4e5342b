package terminal

import "sync"

// Scrollback remembers the most recent screen writes so Screen.Resize can
// clear the terminal and write them again, re-wrapping long lines for the new
// width. Only the newest chunks survive; older output is lost on a resize.
type Scrollback struct {
	mu       sync.RWMutex
	buf      []string
	capacity int
	pos      int // next write position
	full     bool
}

// NewScrollback keeps up to capacity chunks; a non-positive capacity keeps one.
func NewScrollback(capacity int) *Scrollback {
	if capacity <= 0 {
		capacity = 1
	}
	return &Scrollback{
		buf:      make([]string, capacity),
		capacity: capacity,
	}
}

// Write records text as the screen wrote it, evicting the oldest chunk once
// capacity is reached.
func (sb *Scrollback) Write(chunk string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.buf[sb.pos] = chunk
	sb.pos = (sb.pos + 1) % sb.capacity
	if sb.pos == 0 {
		sb.full = true
	}
}

// ReadAll returns the kept chunks oldest first, the order a replay writes them.
func (sb *Scrollback) ReadAll() []string {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	if !sb.full {
		result := make([]string, sb.pos)
		copy(result, sb.buf[:sb.pos])
		return result
	}

	result := make([]string, sb.capacity)
	copy(result, sb.buf[sb.pos:])
	copy(result[sb.capacity-sb.pos:], sb.buf[:sb.pos])
	return result
}

// Len reports how many chunks a replay would write.
func (sb *Scrollback) Len() int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	if sb.full {
		return sb.capacity
	}
	return sb.pos
}
