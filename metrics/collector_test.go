package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("sess-001", "extraction", "https://src.looker.com")

	c.AddItems("dashboard", 10)
	c.AddItems("dashboard", 5)
	c.AddItems("look", 3)
	c.IncBatchCompleted()
	c.IncBatchCompleted()
	c.AddBytesStored(2048)
	c.IncCreated()
	c.IncUpdated()
	c.IncUpdated()
	c.IncSkipped()
	c.IncDeadLettered()
	c.IncError("worker-1")
	c.IncError("worker-1")
	c.IncError("worker-3")

	s := c.Snapshot()

	if s.ItemsProcessed != 18 {
		t.Errorf("ItemsProcessed = %d, want 18", s.ItemsProcessed)
	}
	if s.ItemsByType["dashboard"] != 15 {
		t.Errorf("ItemsByType[dashboard] = %d, want 15", s.ItemsByType["dashboard"])
	}
	if s.ItemsByType["look"] != 3 {
		t.Errorf("ItemsByType[look] = %d, want 3", s.ItemsByType["look"])
	}
	if s.BatchesCompleted != 2 {
		t.Errorf("BatchesCompleted = %d, want 2", s.BatchesCompleted)
	}
	if s.BytesStored != 2048 {
		t.Errorf("BytesStored = %d, want 2048", s.BytesStored)
	}
	if s.ItemsCreated != 1 {
		t.Errorf("ItemsCreated = %d, want 1", s.ItemsCreated)
	}
	if s.ItemsUpdated != 2 {
		t.Errorf("ItemsUpdated = %d, want 2", s.ItemsUpdated)
	}
	if s.ItemsSkipped != 1 {
		t.Errorf("ItemsSkipped = %d, want 1", s.ItemsSkipped)
	}
	if s.ItemsDeadLettered != 1 {
		t.Errorf("ItemsDeadLettered = %d, want 1", s.ItemsDeadLettered)
	}
	if s.ErrorCount != 3 {
		t.Errorf("ErrorCount = %d, want 3", s.ErrorCount)
	}
	if s.ErrorsByWorker["worker-1"] != 2 {
		t.Errorf("ErrorsByWorker[worker-1] = %d, want 2", s.ErrorsByWorker["worker-1"])
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("sess-42", "restoration", "https://dst.looker.com")
	s := c.Snapshot()

	if s.SessionID != "sess-42" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "sess-42")
	}
	if s.SessionKind != "restoration" {
		t.Errorf("SessionKind = %q, want %q", s.SessionKind, "restoration")
	}
	if s.InstanceURL != "https://dst.looker.com" {
		t.Errorf("InstanceURL = %q, want %q", s.InstanceURL, "https://dst.looker.com")
	}
}

func TestCollector_AbsorbLimiterStats(t *testing.T) {
	c := NewCollector("sess-001", "extraction", "")

	c.AbsorbLimiterStats(7, 2.25)

	s := c.Snapshot()
	if s.RateLimitHits != 7 {
		t.Errorf("RateLimitHits = %d, want 7", s.RateLimitHits)
	}
	if s.BackoffMultiplier != 2.25 {
		t.Errorf("BackoffMultiplier = %v, want 2.25", s.BackoffMultiplier)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("sess-001", "extraction", "")
	c.AddItems("user", 1)

	s1 := c.Snapshot()

	c.AddItems("user", 5)
	c.IncBatchCompleted()

	if s1.ItemsProcessed != 1 {
		t.Errorf("s1.ItemsProcessed = %d, want 1 (snapshot should be frozen)", s1.ItemsProcessed)
	}

	s2 := c.Snapshot()
	if s2.ItemsProcessed != 6 {
		t.Errorf("s2.ItemsProcessed = %d, want 6", s2.ItemsProcessed)
	}
	if s2.BatchesCompleted != 1 {
		t.Errorf("s2.BatchesCompleted = %d, want 1", s2.BatchesCompleted)
	}
}

func TestCollector_SnapshotMapIsolation(t *testing.T) {
	c := NewCollector("sess-001", "extraction", "")
	c.AddItems("folder", 3)

	s := c.Snapshot()
	s.ItemsByType["folder"] = 999
	s.ItemsByType["injected"] = 1

	s2 := c.Snapshot()
	if s2.ItemsByType["folder"] != 3 {
		t.Errorf("ItemsByType[folder] = %d, want 3 (collector should be isolated from snapshot mutation)", s2.ItemsByType["folder"])
	}
	if _, exists := s2.ItemsByType["injected"]; exists {
		t.Error("ItemsByType should not contain injected key from snapshot mutation")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	c.AddItems("dashboard", 1)
	c.IncBatchCompleted()
	c.AddBytesStored(10)
	c.IncCreated()
	c.IncUpdated()
	c.IncSkipped()
	c.IncDeadLettered()
	c.IncError("worker-1")
	c.AbsorbLimiterStats(1, 1.5)

	s := c.Snapshot()
	if s.ItemsProcessed != 0 {
		t.Errorf("nil collector snapshot ItemsProcessed = %d, want 0", s.ItemsProcessed)
	}
	if s.ItemsByType != nil {
		t.Errorf("nil collector snapshot ItemsByType should be nil, got %v", s.ItemsByType)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("sess-001", "extraction", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.AddItems("look", 1)
				c.IncBatchCompleted()
				c.IncError("w")
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.ItemsProcessed != want {
		t.Errorf("ItemsProcessed = %d, want %d", s.ItemsProcessed, want)
	}
	if s.BatchesCompleted != want {
		t.Errorf("BatchesCompleted = %d, want %d", s.BatchesCompleted, want)
	}
	if s.ErrorCount != want {
		t.Errorf("ErrorCount = %d, want %d", s.ErrorCount, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("sess-001", "extraction", "")
	s := c.Snapshot()

	if s.ItemsProcessed != 0 || s.BatchesCompleted != 0 || s.BytesStored != 0 {
		t.Error("fresh collector should have zero progress counters")
	}
	if s.ItemsCreated != 0 || s.ItemsUpdated != 0 || s.ItemsSkipped != 0 || s.ItemsDeadLettered != 0 {
		t.Error("fresh collector should have zero restoration counters")
	}
	if s.ErrorCount != 0 || s.RateLimitHits != 0 {
		t.Error("fresh collector should have zero failure counters")
	}
	if s.BackoffMultiplier != 1.0 {
		t.Errorf("fresh collector BackoffMultiplier = %v, want 1.0", s.BackoffMultiplier)
	}
	if len(s.ItemsByType) != 0 {
		t.Errorf("fresh collector ItemsByType should be empty, got %v", s.ItemsByType)
	}
}
