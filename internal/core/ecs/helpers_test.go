package ecs

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type alpha struct{ V int }
type beta struct{ V int }
type gamma struct{ V int }
type delta struct{ V int }

// testSystem is a configurable system used across the package tests.
type testSystem[T any] struct {
	Base[T]
	declare func(s System)
	update  func(dt time.Duration)
	log     *eventLog

	initCalls    int
	cleanupCalls int
	inits        []EntityID
	cleanups     []EntityID
}

func (s *testSystem[T]) Init()    { s.initCalls++ }
func (s *testSystem[T]) Cleanup() { s.cleanupCalls++ }

func (s *testSystem[T]) DeclareDependencies() {
	if s.declare != nil {
		s.declare(s)
	}
}

func (s *testSystem[T]) InitEntity(id EntityID) {
	s.inits = append(s.inits, id)
	s.log.add("init " + s.Name())
}

func (s *testSystem[T]) CleanupEntity(id EntityID) {
	s.cleanups = append(s.cleanups, id)
	s.log.add("cleanup " + s.Name())
}

func (s *testSystem[T]) UpdateAllEntities(dt time.Duration) {
	if s.update != nil {
		s.update(dt)
	}
}

// eventLog records hook calls in order; a nil log discards them.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestManager(t *testing.T, workers int) *Manager {
	t.Helper()
	m := NewManager(WithLogger(zaptest.NewLogger(t)), WithMaxWorkerThreads(workers))
	t.Cleanup(m.Shutdown)
	return m
}
