package ecs

import (
	"sync"
	"time"

	"github.com/kelindar/bitmap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// accessEdge is one claim a running system holds on a target's data.
type accessEdge struct {
	target SystemID
	kind   AccessDependency
}

// scheduler runs one tick at a time across the driving goroutine and a fixed
// pool of workers. Every system moves unupdated → updating → updated exactly
// once per tick. The three sets and the reader/writer counters are guarded by
// mu, which is never held across a system update.
type scheduler struct {
	m        *Manager
	systems  []System
	after    [][]SystemID
	access   [][]accessEdge
	mu       sync.Mutex
	progress *sync.Cond

	unupdated bitmap.Bitmap
	updating  bitmap.Bitmap
	updated   bitmap.Bitmap
	readers   []int
	writers   []int
	dt        time.Duration
	ticks     uint64

	exit    bool
	workers *errgroup.Group
	running int
}

// newScheduler snapshots the frozen dependency graph. A running system also
// holds read-write access to its own store, so nothing reads or writes it
// while it updates.
func newScheduler(m *Manager) *scheduler {
	n := m.registry.len()
	s := &scheduler{
		m:       m,
		systems: append([]System(nil), m.registry.systems...),
		after:   make([][]SystemID, n),
		access:  make([][]accessEdge, n),
		readers: make([]int, n),
		writers: make([]int, n),
	}
	s.progress = sync.NewCond(&s.mu)
	for i, sys := range s.systems {
		id := SystemID(i)
		s.after[i] = append([]SystemID(nil), sys.ExecuteDependencies()...)
		edges := []accessEdge{{target: id, kind: ReadWriteAccess}}
		for target, kind := range sys.AccessDependencies() {
			if target == id || kind == NoAccessDependency {
				continue
			}
			edges = append(edges, accessEdge{target: target, kind: kind})
		}
		s.access[i] = edges
	}
	return s
}

// start spawns n long-lived workers.
func (s *scheduler) start(n int) {
	s.workers = new(errgroup.Group)
	s.running = n
	for i := 0; i < n; i++ {
		worker := i
		s.workers.Go(func() error {
			s.workerLoop(worker)
			return nil
		})
	}
}

// stop asks the workers to exit and waits for them.
func (s *scheduler) stop() {
	s.mu.Lock()
	if s.exit {
		s.mu.Unlock()
		return
	}
	s.exit = true
	s.progress.Broadcast()
	s.mu.Unlock()
	if s.workers != nil {
		_ = s.workers.Wait()
	}
	s.m.log.Debug("scheduler workers stopped", zap.Int("workers", s.running))
}

func (s *scheduler) workerLoop(worker int) {
	s.m.log.Debug("scheduler worker started", zap.Int("worker", worker))
	s.mu.Lock()
	for !s.exit {
		id := s.claimLocked(false)
		if id == InvalidSystem {
			s.progress.Wait()
			continue
		}
		dt := s.dt
		s.mu.Unlock()
		s.systems[id].UpdateAllEntities(dt)
		s.mu.Lock()
		s.markUpdatedLocked(id)
		s.progress.Broadcast()
	}
	s.mu.Unlock()
}

// tick runs every system once. The driving goroutine prefers systems that are
// not thread-safe and sleeps only while nothing is eligible.
func (s *scheduler) tick(dt time.Duration) {
	s.mu.Lock()
	if s.unupdated.Count() != 0 || s.updating.Count() != 0 {
		s.failLocked("tick started while another tick is in flight")
	}
	s.checkCountersLocked("tick start")

	s.updated.Clear()
	for i := range s.systems {
		s.unupdated.Set(uint32(i))
	}
	s.dt = dt
	s.progress.Broadcast()

	for s.unupdated.Count() > 0 || s.updating.Count() > 0 {
		id := s.claimLocked(true)
		if id == InvalidSystem {
			s.progress.Wait()
			continue
		}
		s.mu.Unlock()
		s.systems[id].UpdateAllEntities(dt)
		s.mu.Lock()
		s.markUpdatedLocked(id)
		s.progress.Broadcast()
	}

	s.checkCountersLocked("tick end")
	s.ticks++
	s.mu.Unlock()
}

// claimLocked picks an eligible unupdated system and moves it to updating.
// A system is eligible once all its execute-after dependencies are updated and
// none of its access claims conflict with claims already held. Workers only
// take thread-safe systems; the driving goroutine prefers the others and falls
// back to the first thread-safe candidate it saw.
func (s *scheduler) claimLocked(forMainThread bool) SystemID {
	chosen, fallback := InvalidSystem, InvalidSystem
	for i := range s.systems {
		if !s.unupdated.Contains(uint32(i)) {
			continue
		}
		id := SystemID(i)
		if !s.eligibleLocked(id) {
			continue
		}
		threadSafe := s.systems[i].IsThreadSafe()
		if forMainThread {
			if !threadSafe {
				chosen = id
				break
			}
			if fallback == InvalidSystem {
				fallback = id
			}
			continue
		}
		if threadSafe {
			chosen = id
			break
		}
	}
	if chosen == InvalidSystem {
		chosen = fallback
	}
	if chosen == InvalidSystem {
		return InvalidSystem
	}
	s.markUpdatingLocked(chosen)
	return chosen
}

func (s *scheduler) eligibleLocked(id SystemID) bool {
	for _, dep := range s.after[id] {
		if !s.updated.Contains(uint32(dep)) {
			return false
		}
	}
	for _, e := range s.access[id] {
		if s.writers[e.target] != 0 {
			return false
		}
		if e.kind == ReadWriteAccess && s.readers[e.target] != 0 {
			return false
		}
	}
	return true
}

func (s *scheduler) markUpdatingLocked(id SystemID) {
	if s.updating.Contains(uint32(id)) {
		s.failLocked("system claimed while already updating", zap.String("system", s.systems[id].Name()))
	}
	s.unupdated.Remove(uint32(id))
	s.updating.Set(uint32(id))
	for _, e := range s.access[id] {
		switch e.kind {
		case ReadWriteAccess:
			if s.writers[e.target] != 0 {
				s.failLocked("write/write race",
					zap.String("system", s.systems[id].Name()),
					zap.String("target", s.systems[e.target].Name()))
			}
			s.writers[e.target]++
		case ReadAccess:
			s.readers[e.target]++
		}
	}
}

func (s *scheduler) markUpdatedLocked(id SystemID) {
	if !s.updating.Contains(uint32(id)) {
		s.failLocked("system marked updated without being claimed", zap.String("system", s.systems[id].Name()))
	}
	s.updating.Remove(uint32(id))
	s.updated.Set(uint32(id))
	for _, e := range s.access[id] {
		counter := &s.readers[e.target]
		if e.kind == ReadWriteAccess {
			counter = &s.writers[e.target]
		}
		*counter--
		if *counter < 0 {
			s.failLocked("access counter underflow",
				zap.String("system", s.systems[id].Name()),
				zap.String("target", s.systems[e.target].Name()),
				zap.Stringer("kind", e.kind))
		}
	}
}

func (s *scheduler) checkCountersLocked(when string) {
	for i := range s.systems {
		if s.readers[i] != 0 || s.writers[i] != 0 {
			s.failLocked("access counters not zero",
				zap.String("when", when),
				zap.String("system", s.systems[i].Name()),
				zap.Int("readers", s.readers[i]),
				zap.Int("writers", s.writers[i]))
		}
	}
}

// failLocked releases mu before the fatal panic so other goroutines are not
// left blocked on it.
func (s *scheduler) failLocked(msg string, fields ...zap.Field) {
	s.mu.Unlock()
	s.m.fatal(msg, fields...)
}

// tickState is a consistent view of the bookkeeping, for diagnostics.
type tickState struct {
	unupdated, updating, updated int
	readers, writers             []int
	ticks                        uint64
}

func (s *scheduler) state() tickState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tickState{
		unupdated: s.unupdated.Count(),
		updating:  s.updating.Count(),
		updated:   s.updated.Count(),
		readers:   append([]int(nil), s.readers...),
		writers:   append([]int(nil), s.writers...),
		ticks:     s.ticks,
	}
}
