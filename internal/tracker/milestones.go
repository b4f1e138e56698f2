package tracker

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultScrollThresholds are the scroll depth milestones, in percent.
var DefaultScrollThresholds = []int{25, 50, 75, 90, 100}

// ScrollMilestones keeps the high-water mark of scroll depth and reports each
// threshold the first time it is reached. Not safe for concurrent use.
type ScrollMilestones struct {
	thresholds []int
	max        int
	fired      map[int]bool
}

func NewScrollMilestones(thresholds []int) *ScrollMilestones {
	ts := make([]int, 0, len(thresholds))
	seen := make(map[int]bool)
	for _, th := range thresholds {
		if !seen[th] {
			seen[th] = true
			ts = append(ts, th)
		}
	}
	sort.Ints(ts)

	return &ScrollMilestones{
		thresholds: ts,
		fired:      make(map[int]bool),
	}
}

// Observe records a scroll depth and returns the thresholds it newly crossed,
// in ascending order. Depths at or below the high-water mark return nil.
func (m *ScrollMilestones) Observe(percent int) []int {
	if percent <= m.max {
		return nil
	}
	m.max = percent

	var crossed []int
	for _, th := range m.thresholds {
		if th > percent {
			break
		}
		if !m.fired[th] {
			m.fired[th] = true
			crossed = append(crossed, th)
		}
	}
	return crossed
}

// Max returns the deepest scroll seen so far.
func (m *ScrollMilestones) Max() int {
	return m.max
}

// ScrollPercent converts scroll geometry into a depth percentage: how much
// of the document has been brought into view.
func ScrollPercent(scrollY, viewportHeight, documentHeight float64) int {
	if documentHeight <= 0 {
		return 0
	}
	p := int(math.Round((scrollY + viewportHeight) / documentHeight * 100))
	return max(0, min(p, 100))
}

// TimeMilestone fires its callback exactly once, after threshold has elapsed,
// unless stopped first.
type TimeMilestone struct {
	once  sync.Once
	timer *time.Timer
}

func StartTimeMilestone(threshold time.Duration, fire func(elapsed time.Duration)) *TimeMilestone {
	start := time.Now()
	m := &TimeMilestone{}
	m.timer = time.AfterFunc(threshold, func() {
		m.once.Do(func() { fire(time.Since(start)) })
	})
	return m
}

// Stop prevents the milestone from firing if it has not already.
func (m *TimeMilestone) Stop() {
	m.timer.Stop()
	m.once.Do(func() {})
}

// debouncer runs the most recently triggered function once the triggers have
// been quiet for delay. A zero delay runs it immediately.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (d *debouncer) trigger(fn func()) {
	if d.delay <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
