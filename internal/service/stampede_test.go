package service

import (
	"sync"
	"testing"
)

func TestStampedeTracker_RecordMiss(t *testing.T) {
	st := newStampedeTracker()

	if got := st.RecordMiss("london"); got != 1 {
		t.Errorf("first RecordMiss = %d, want 1", got)
	}
	if got := st.RecordMiss("london"); got != 2 {
		t.Errorf("second RecordMiss = %d, want 2", got)
	}
	if got := st.RecordMiss("tokyo"); got != 1 {
		t.Errorf("RecordMiss for distinct key = %d, want 1", got)
	}
}

func TestStampedeTracker_Resolve(t *testing.T) {
	st := newStampedeTracker()

	st.RecordMiss("london")
	st.RecordMiss("london")
	st.Resolve("london")
	if got := st.RecordMiss("london"); got != 2 {
		t.Errorf("RecordMiss after one Resolve = %d, want 2", got)
	}

	st.Resolve("london")
	st.Resolve("london")
	if got := st.RecordMiss("london"); got != 1 {
		t.Errorf("RecordMiss after full drain = %d, want 1", got)
	}
}

func TestStampedeTracker_ResolveUnknownKey(t *testing.T) {
	st := newStampedeTracker()
	st.Resolve("never-missed")
	if got := st.RecordMiss("never-missed"); got != 1 {
		t.Errorf("RecordMiss = %d, want 1 (Resolve on unknown key is a no-op)", got)
	}
}

func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				st.RecordMiss("london")
				st.Resolve("london")
			}
		}()
	}
	wg.Wait()

	if got := st.RecordMiss("london"); got != 1 {
		t.Errorf("RecordMiss after balanced concurrent use = %d, want 1", got)
	}
}
