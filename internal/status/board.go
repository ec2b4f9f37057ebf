// internal/status/board.go
package status

import "sync"

// Board is the shared read side of every device's status.
// Trackers are single-owner; pipelines publish their results here.
type Board struct {
	mu   sync.RWMutex
	devs map[string]Snapshot
}

func NewBoard() *Board {
	return &Board{devs: make(map[string]Snapshot)}
}

func (b *Board) Set(id string, s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devs[id] = s
}

func (b *Board) Get(id string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.devs[id]
	return s, ok
}

// HealthName is the API label of a health code.
func HealthName(code uint16) string {
	switch code {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthAsleep:
		return "asleep"
	case HealthFault:
		return "fault"
	default:
		return "unknown"
	}
}
