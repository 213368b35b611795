package ecs

import (
	"errors"
	"slices"
	"testing"
)

func TestRegisterSystemAssignsIDsAndRunsInit(t *testing.T) {
	m := newTestManager(t, 0)
	a, b := &testSystem[alpha]{}, &testSystem[beta]{}

	if id := m.RegisterSystem(a); id != 0 {
		t.Fatalf("first id = %d, want 0", id)
	}
	if id := m.RegisterSystem(b); id != 1 {
		t.Fatalf("second id = %d, want 1", id)
	}
	if a.initCalls != 1 || b.initCalls != 1 {
		t.Fatalf("Init calls: a=%d b=%d", a.initCalls, b.initCalls)
	}
	if a.Manager() != m {
		t.Fatal("back-reference to manager not set")
	}

	if got := SystemIDOf[beta](m); got != 1 {
		t.Fatalf("lookup by data type = %d", got)
	}
	if got := SystemIDOf[*testSystem[alpha]](m); got != 0 {
		t.Fatalf("lookup by system type = %d", got)
	}
	if SystemOf[*testSystem[beta]](m) != b {
		t.Fatal("SystemOf returned the wrong instance")
	}
	if m.SystemByName("ALPHA") != a || m.SystemByName("missing") != nil {
		t.Fatal("name lookup mismatch")
	}
}

func TestRegisterAfterFinalizePanics(t *testing.T) {
	m := newTestManager(t, 0)
	m.RegisterSystem(&testSystem[alpha]{})
	m.FinalizeSystemList()
	mustPanic(t, func() { m.RegisterSystem(&testSystem[beta]{}) })
}

func TestRegisterDuplicateTypePanics(t *testing.T) {
	m := newTestManager(t, 0)
	m.RegisterSystem(&testSystem[alpha]{})
	mustPanic(t, func() { m.RegisterSystem(&testSystem[alpha]{}) })
}

// impostor holds delta data but claims alpha's name.
type impostor struct{ Base[delta] }

func (s *impostor) Name() string { return "Alpha" }

func TestRegisterDuplicateNamePanics(t *testing.T) {
	m := newTestManager(t, 0)
	m.RegisterSystem(&testSystem[alpha]{})
	mustPanic(t, func() { m.RegisterSystem(&impostor{}) })
	if m.SystemCount() != 1 || m.SystemByName("alpha").ID() != 0 {
		t.Fatal("duplicate name changed the registry")
	}
}

func TestUnregisteredTypeLookupPanics(t *testing.T) {
	m := newTestManager(t, 0)
	mustPanic(t, func() { SystemIDOf[gamma](m) })
}

func TestDependencyTranslation(t *testing.T) {
	orders := []OrderDependency{NoOrderDependency, ExecuteBefore, ExecuteAfter}
	accesses := []AccessDependency{NoAccessDependency, ReadAccess, ReadWriteAccess}

	for _, order := range orders {
		for _, access := range accesses {
			t.Run(order.String()+"/"+access.String(), func(t *testing.T) {
				m := newTestManager(t, 0)
				a := &testSystem[alpha]{}
				b := &testSystem[beta]{}
				m.RegisterSystem(a)
				bID := m.RegisterSystem(b)
				a.declare = func(s System) { s.DependOn(bID, order, access) }
				m.FinalizeSystemList()

				aAfterB := slices.Contains(a.ExecuteDependencies(), bID)
				bAfterA := slices.Contains(b.ExecuteDependencies(), a.ID())
				switch order {
				case ExecuteBefore:
					if aAfterB || !bAfterA {
						t.Fatalf("execute-before: a.after=%v b.after=%v", a.ExecuteDependencies(), b.ExecuteDependencies())
					}
				case ExecuteAfter:
					if !aAfterB || bAfterA {
						t.Fatalf("execute-after: a.after=%v b.after=%v", a.ExecuteDependencies(), b.ExecuteDependencies())
					}
				default:
					if aAfterB || bAfterA {
						t.Fatal("no-order recorded an edge")
					}
				}

				got, ok := a.AccessDependencies()[bID]
				if access == NoAccessDependency {
					if ok {
						t.Fatalf("no-access recorded %v", got)
					}
				} else if got != access {
					t.Fatalf("access = %v, want %v", got, access)
				}
				if len(b.AccessDependencies()) != 0 {
					t.Fatal("access dependency leaked onto the target")
				}
			})
		}
	}
}

func TestDependOnAfterFinalizeIsIgnored(t *testing.T) {
	m := newTestManager(t, 0)
	a := &testSystem[alpha]{}
	m.RegisterSystem(a)
	bID := m.RegisterSystem(&testSystem[beta]{})
	m.FinalizeSystemList()

	a.DependOn(bID, ExecuteAfter, ReadWriteAccess)
	if len(a.ExecuteDependencies()) != 0 || len(a.AccessDependencies()) != 0 {
		t.Fatal("dependency recorded after finalize")
	}
}

func TestCyclicDependenciesPanicAtFinalize(t *testing.T) {
	m := newTestManager(t, 0)
	a, b, c := &testSystem[alpha]{}, &testSystem[beta]{}, &testSystem[gamma]{}
	aID, bID, cID := m.RegisterSystem(a), m.RegisterSystem(b), m.RegisterSystem(c)
	a.declare = func(s System) { s.DependOn(bID, ExecuteAfter, NoAccessDependency) }
	b.declare = func(s System) { s.DependOn(cID, ExecuteAfter, NoAccessDependency) }
	c.declare = func(s System) { s.DependOn(aID, ExecuteAfter, NoAccessDependency) }

	mustPanic(t, m.FinalizeSystemList)
}

func TestAutoAddRunsDependencyInitFirst(t *testing.T) {
	m := newTestManager(t, 0)
	events := &eventLog{}
	a := &testSystem[alpha]{log: events}
	b := &testSystem[beta]{log: events}
	m.RegisterSystem(a)
	bID := m.RegisterSystem(b)
	a.declare = func(s System) { s.DependOn(bID, ExecuteAfter, ReadAccess, AutoAdd()) }
	m.FinalizeSystemList()

	e := m.AllocateNewEntity()
	data := AddComponent[alpha](m, e)
	if data == nil || !b.HasDataForEntity(e) {
		t.Fatal("auto-add dependency did not receive the entity")
	}
	want := []string{"init beta", "init alpha"}
	if got := events.all(); !slices.Equal(got, want) {
		t.Fatalf("hook order = %v, want %v", got, want)
	}

	// Adding again is idempotent everywhere.
	AddComponent[alpha](m, e)
	if len(a.inits) != 1 || len(b.inits) != 1 {
		t.Fatalf("InitEntity ran again: a=%d b=%d", len(a.inits), len(b.inits))
	}
}

func TestDeleteEntityIsDeferred(t *testing.T) {
	m := newTestManager(t, 0)
	a := &testSystem[alpha]{}
	b := &testSystem[beta]{}
	aID := m.RegisterSystem(a)
	m.RegisterSystem(b)
	m.FinalizeSystemList()

	e := m.AllocateNewEntity()
	m.AddComponent(e, aID)
	AddComponent[beta](m, e).V = 3

	m.DeleteEntity(e)
	m.DeleteEntity(e)
	if !m.IsEntityValid(e) || !m.IsEntityMarkedForDeletion(e) {
		t.Fatal("marked entity must stay valid until flushed")
	}
	if GetComponentData[beta](m, e).V != 3 {
		t.Fatal("marked entity lost its data early")
	}

	m.DeleteMarkedEntities()
	if m.IsEntityValid(e) || m.IsEntityMarkedForDeletion(e) {
		t.Fatal("entity survived DeleteMarkedEntities")
	}
	if a.HasDataForEntity(e) || b.HasDataForEntity(e) {
		t.Fatal("entity data survived deletion")
	}
	if len(a.cleanups) != 1 || len(b.cleanups) != 1 {
		t.Fatalf("cleanup calls: a=%d b=%d", len(a.cleanups), len(b.cleanups))
	}
}

func TestDeleteEntityImmediately(t *testing.T) {
	m := newTestManager(t, 0)
	a := &testSystem[alpha]{}
	m.RegisterSystem(a)
	m.FinalizeSystemList()

	e := m.AllocateNewEntity()
	AddComponent[alpha](m, e)
	m.DeleteEntity(e)
	m.DeleteEntityImmediately(e)
	if m.IsEntityValid(e) || a.HasDataForEntity(e) {
		t.Fatal("entity survived immediate deletion")
	}

	// The queued mark must not touch the slot's next occupant.
	next := m.AllocateNewEntity()
	AddComponent[alpha](m, next)
	m.DeleteMarkedEntities()
	if !m.IsEntityValid(next) || !a.HasDataForEntity(next) {
		t.Fatal("stale queued deletion removed a reused slot")
	}
}

func TestRemoveEntityWithoutDataPanics(t *testing.T) {
	m := newTestManager(t, 0)
	a := &testSystem[alpha]{}
	m.RegisterSystem(a)
	mustPanic(t, func() { a.RemoveEntity(m.AllocateNewEntity()) })
}

func TestRemoveComponent(t *testing.T) {
	m := newTestManager(t, 0)
	a := &testSystem[alpha]{}
	aID := m.RegisterSystem(a)
	e := m.AllocateNewEntity()
	m.AddComponent(e, aID)

	m.RemoveComponent(e, aID)
	m.RemoveComponent(e, aID)
	if m.HasComponent(e, aID) || len(a.cleanups) != 1 {
		t.Fatalf("RemoveComponent: has=%v cleanups=%d", m.HasComponent(e, aID), len(a.cleanups))
	}
}

func TestDataRequiresDeclaredAccess(t *testing.T) {
	m := newTestManager(t, 0)
	a := &testSystem[alpha]{}
	b := &testSystem[beta]{}
	c := &testSystem[gamma]{}
	m.RegisterSystem(a)
	bID := m.RegisterSystem(b)
	m.RegisterSystem(c)
	a.declare = func(s System) { s.DependOn(bID, NoOrderDependency, ReadAccess) }
	m.FinalizeSystemList()

	e := m.AllocateNewEntity()
	AddComponent[beta](m, e).V = 9
	AddComponent[gamma](m, e)

	if got := Data[beta](a, e); got == nil || got.V != 9 {
		t.Fatalf("Data[beta] = %+v", got)
	}
	if Data[alpha](a, e) != nil {
		t.Fatal("own store lookup should return nil for an absent entity")
	}
	mustPanic(t, func() { Data[gamma](a, e) })
}

type stubFactory struct {
	calls int
	err   error
}

func (f *stubFactory) CreateEntityFromData(data []byte, m *Manager) (EntityID, error) {
	f.calls++
	if f.err != nil {
		return InvalidEntity, f.err
	}
	e := m.AllocateNewEntity()
	AddComponent[alpha](m, e).V = len(data)
	return e, nil
}

func TestCreateEntityFromData(t *testing.T) {
	m := newTestManager(t, 0)
	m.RegisterSystem(&testSystem[alpha]{})
	m.FinalizeSystemList()
	mustPanic(t, func() { m.CreateEntityFromData(nil) })

	f := &stubFactory{}
	m.SetEntityFactory(f)
	e, err := m.CreateEntityFromData([]byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if GetComponentData[alpha](m, e).V != 3 {
		t.Fatal("factory did not populate the entity")
	}

	f.err = errors.New("bad blob")
	if _, err := m.CreateEntityFromData(nil); !errors.Is(err, f.err) {
		t.Fatalf("err = %v", err)
	}
}

func TestClearResetsManager(t *testing.T) {
	m := newTestManager(t, 1)
	a := &testSystem[alpha]{}
	m.RegisterSystem(a)
	m.FinalizeSystemList()
	e := m.AllocateNewEntity()
	AddComponent[alpha](m, e)

	m.Clear()
	if len(a.cleanups) != 1 || a.cleanupCalls != 1 {
		t.Fatalf("Clear: entity cleanups=%d system cleanups=%d", len(a.cleanups), a.cleanupCalls)
	}
	if m.SystemCount() != 0 || m.EntityCount() != 0 || m.IsSystemListFinal() {
		t.Fatal("Clear left state behind")
	}

	// The manager is usable again from registration on.
	m.RegisterSystem(&testSystem[beta]{})
	m.FinalizeSystemList()
	m.UpdateSystems(0)
}

func TestClearThenReregisterInReverseOrder(t *testing.T) {
	m := newTestManager(t, 1)
	a := &testSystem[alpha]{}
	b := &testSystem[beta]{declare: func(s System) {
		DependOnSystem[alpha](s, ExecuteAfter, ReadAccess, AutoAdd())
	}}
	m.RegisterSystem(a)
	m.RegisterSystem(b)
	m.FinalizeSystemList()
	m.UpdateSystems(0)
	m.Clear()

	// b now takes id 0 and a id 1; nothing from the first round may survive.
	m.RegisterSystem(b)
	m.RegisterSystem(a)
	if len(b.ExecuteDependencies()) != 0 || len(b.AccessDependencies()) != 0 {
		t.Fatalf("stale dependencies after Clear: after=%v access=%v",
			b.ExecuteDependencies(), b.AccessDependencies())
	}
	m.FinalizeSystemList()

	aid, bid := SystemIDOf[alpha](m), SystemIDOf[beta](m)
	if got := b.ExecuteDependencies(); len(got) != 1 || got[0] != aid {
		t.Fatalf("beta execute-after = %v, want [%d]", got, aid)
	}
	if got := b.AccessDependencies(); len(got) != 1 || got[aid] != ReadAccess {
		t.Fatalf("beta access = %v", got)
	}
	if len(a.ExecuteDependencies()) != 0 {
		t.Fatalf("alpha execute-after = %v", a.ExecuteDependencies())
	}

	e := m.AllocateNewEntity()
	AddComponent[beta](m, e)
	if !m.HasComponent(e, aid) || !m.HasComponent(e, bid) {
		t.Fatal("auto-add not re-established after Clear")
	}
	m.UpdateSystems(0)
	assertTickComplete(t, m)
}

func TestSetMaxWorkerThreadsAfterFinalizeIgnored(t *testing.T) {
	m := newTestManager(t, 1)
	m.FinalizeSystemList()
	m.SetMaxWorkerThreads(8)
	if m.MaxWorkerThreads() != 1 {
		t.Fatalf("workers = %d, want 1", m.MaxWorkerThreads())
	}
}

func TestUpdateBeforeFinalizePanics(t *testing.T) {
	m := newTestManager(t, 0)
	mustPanic(t, func() { m.UpdateSystems(0) })
}

func TestEntitiesIteration(t *testing.T) {
	m := newTestManager(t, 0)
	a, b := m.AllocateNewEntity(), m.AllocateNewEntity()
	m.DeleteEntityImmediately(a)

	var got []EntityID
	for e := range m.Entities() {
		got = append(got, e)
	}
	if len(got) != 1 || got[0] != b || m.EntityCount() != 1 {
		t.Fatalf("Entities = %v", got)
	}
}
