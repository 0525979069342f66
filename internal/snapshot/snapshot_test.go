package snapshot

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/testutil"
)

func TestCompareAndSwap(t *testing.T) {
	s := New()
	records, v := s.Snapshot()
	if len(records) != 0 || v != 0 {
		t.Fatalf("expected empty store at version 0, got %d records at %d", len(records), v)
	}

	net := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	first := []models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, net)}
	if !s.CompareAndSwap(v, first) {
		t.Fatal("swap at current version failed")
	}
	if s.Version() != 1 || s.Len() != 1 {
		t.Errorf("expected version 1 with 1 record, got %d/%d", s.Version(), s.Len())
	}
	if s.UpdatedAt().IsZero() {
		t.Error("UpdatedAt not set")
	}
	if s.CompareAndSwap(v, nil) {
		t.Error("swap at stale version succeeded")
	}
	if s.Len() != 1 {
		t.Error("stale swap changed the records")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	net := time.Now()
	in := []models.LaunchRecord{testutil.Launch("a", "SpaceX", models.LaunchStatusGo, net)}
	s.CompareAndSwap(0, in)
	in[0].Name = "mutated input"

	out, _ := s.Snapshot()
	out[0].Name = "mutated output"

	r, ok := s.Find("a")
	if !ok || r.Name != "Launch a" {
		t.Errorf("store shares memory with callers: %+v", r)
	}
}

func TestAtAndFind(t *testing.T) {
	s := New()
	net := time.Now()
	s.CompareAndSwap(0, []models.LaunchRecord{
		testutil.Launch("a", "SpaceX", models.LaunchStatusGo, net),
		testutil.Launch("b", "Rocket Lab", models.LaunchStatusTBD, net.Add(time.Hour)),
	})
	r, err := s.At(1)
	if err != nil || r.SourceID != "b" {
		t.Errorf("At(1) = %+v, %v", r, err)
	}
	if _, err := s.At(2); !errors.Is(err, models.ErrLaunchNotFound) {
		t.Errorf("expected ErrLaunchNotFound, got %v", err)
	}
	if _, ok := s.Find("missing"); ok {
		t.Error("found a missing launch")
	}
}

func TestConcurrentSwapsAreLinear(t *testing.T) {
	s := New()
	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, v := s.Snapshot()
				if s.CompareAndSwap(v, nil) {
					return
				}
			}
		}()
	}
	wg.Wait()
	if s.Version() != writers {
		t.Errorf("expected %d versions, got %d", writers, s.Version())
	}
}
