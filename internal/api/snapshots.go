package api

import (
	"sort"
	"sync"

	"codeberg.org/mutker/stepperctl/internal/telemetry"
)

// Snapshots holds the last published state of every motor. The sampling
// goroutines publish into it so handlers never touch the engine directly.
type Snapshots struct {
	mu     sync.RWMutex
	motors map[int]snapshot
}

type snapshot struct {
	context telemetry.Context
	health  telemetry.Health
}

func NewSnapshots() *Snapshots {
	return &Snapshots{motors: make(map[int]snapshot)}
}

func (s *Snapshots) Publish(id int, c telemetry.Context, h telemetry.Health) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.motors[id] = snapshot{context: c, health: h}
}

func (s *Snapshots) Context(id int) (telemetry.Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.motors[id]

	return snap.context, ok
}

// Health returns the health of every published motor ordered by id
func (s *Snapshots) Health() []telemetry.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]telemetry.Health, 0, len(s.motors))
	for _, snap := range s.motors {
		out = append(out, snap.health)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MotorID < out[j].MotorID
	})

	return out
}
