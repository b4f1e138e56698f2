package tracker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestScrollPercent(t *testing.T) {
	tests := []struct {
		name                     string
		scrollY, viewport, total float64
		want                     int
	}{
		{"top of long page", 0, 500, 2000, 25},
		{"middle", 500, 500, 2000, 50},
		{"bottom", 1500, 500, 2000, 100},
		{"overscroll clamps", 1700, 500, 2000, 100},
		{"short page", 0, 800, 400, 100},
		{"empty document", 0, 500, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScrollPercent(tt.scrollY, tt.viewport, tt.total); got != tt.want {
				t.Errorf("ScrollPercent = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScrollMilestones_JumpCrossesSeveral(t *testing.T) {
	m := NewScrollMilestones([]int{50, 25, 100, 25})

	if diff := cmp.Diff([]int{25, 50}, m.Observe(60)); diff != "" {
		t.Errorf("first observe mismatch (-want +got):\n%s", diff)
	}
	if got := m.Observe(40); got != nil {
		t.Errorf("going back up should not fire, got %v", got)
	}
	if diff := cmp.Diff([]int{100}, m.Observe(100)); diff != "" {
		t.Errorf("second observe mismatch (-want +got):\n%s", diff)
	}
	if got := m.Observe(100); got != nil {
		t.Errorf("repeat depth should not fire, got %v", got)
	}
}

func TestTimeMilestone_StopBeforeFire(t *testing.T) {
	var fired atomic.Int32
	m := StartTimeMilestone(20*time.Millisecond, func(time.Duration) { fired.Add(1) })
	m.Stop()

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("stopped milestone must not fire")
	}
}

func TestTimeMilestone_ReportsElapsed(t *testing.T) {
	got := make(chan time.Duration, 1)
	StartTimeMilestone(10*time.Millisecond, func(d time.Duration) { got <- d })

	select {
	case d := <-got:
		if d < 10*time.Millisecond {
			t.Errorf("elapsed %v shorter than threshold", d)
		}
	case <-time.After(time.Second):
		t.Fatal("milestone never fired")
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	var calls atomic.Int32
	d := &debouncer{delay: 20 * time.Millisecond}

	for i := 0; i < 5; i++ {
		d.trigger(func() { calls.Add(1) })
	}
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call after burst, got %d", got)
	}

	d.stop()
	d.trigger(func() { calls.Add(1) })
	time.Sleep(40 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("stopped debouncer must not run, got %d calls", got)
	}
}
