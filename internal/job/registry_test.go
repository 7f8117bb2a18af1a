package job

import (
	"testing"
	"time"
)

func TestRegistryAddDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	m, cmd := testMention(t)
	j := New("acme/widgets", 7, 123, "alice", m, cmd)

	if err := r.Add(j); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	dup := New("acme/widgets", 7, 123, "bob", m, cmd)
	if err := r.Add(dup); err == nil {
		t.Error("Add() accepted a duplicate id")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(nil)
	m, cmd := testMention(t)
	j := New("acme/widgets", 7, 123, "alice", m, cmd)
	_ = r.Add(j)

	got, ok := r.Get(j.ID)
	if !ok || got != j {
		t.Errorf("Get() = %v, %v; want the registered job", got, ok)
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("Get() found an unregistered id")
	}
}

func TestRegistryGetFallsBackToStore(t *testing.T) {
	store := newTestStore(t)
	r := NewRegistry(store)
	m, cmd := testMention(t)
	j := New("acme/widgets", 7, 123, "alice", m, cmd)
	_ = r.Add(j)
	_ = j.Transition(StatusCompleted)
	r.Sync(j)

	// A fresh registry over the same store sees the record, as after a
	// process restart.
	restarted := NewRegistry(store)
	if restarted.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 in-memory jobs", restarted.Len())
	}
	got, ok := restarted.Get(j.ID)
	if !ok || got == nil {
		t.Fatal("Get() should fall back to the persisted store")
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", got.Status, StatusCompleted)
	}
}

func TestRegistryPrune(t *testing.T) {
	r := NewRegistry(nil)
	m, cmd := testMention(t)

	old := New("acme/widgets", 1, 10, "alice", m, cmd)
	_ = old.Transition(StatusFailed)
	past := time.Now().Add(-2 * time.Hour)
	old.CompletedAt = &past
	_ = r.Add(old)

	inflight := New("acme/widgets", 2, 20, "alice", m, cmd)
	_ = inflight.Transition(StatusProcessing)
	_ = r.Add(inflight)

	if n := r.Prune(time.Hour); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, ok := r.Get(old.ID); ok {
		t.Error("old terminal job still in memory")
	}
	if _, ok := r.Get(inflight.ID); !ok {
		t.Error("in-flight job evicted")
	}
}
