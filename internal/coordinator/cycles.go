package coordinator

import (
	"sync"
)

// Counter name suffixes.
const (
	SuffixTotal = "_cycling_total"
	SuffixDaily = "_cycling_daily"
)

// cycleCounter counts entries into each operating mode per heat pump.
type cycleCounter struct {
	mu        sync.Mutex
	lastState map[string]int
	total     map[string]map[string]int
	daily     map[string]map[string]int
	offsets   func(device, counter string) float64
}

func newCycleCounter(offsets func(device, counter string) float64) *cycleCounter {
	if offsets == nil {
		offsets = func(string, string) float64 { return 0 }
	}
	return &cycleCounter{
		lastState: make(map[string]int),
		total:     make(map[string]map[string]int),
		daily:     make(map[string]map[string]int),
		offsets:   offsets,
	}
}

// observe records the operating state of a heat pump and returns the modes
// that were entered. The first observation of a device only sets the
// baseline.
func (c *cycleCounter) observe(device string, state int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, seen := c.lastState[device]
	c.lastState[device] = state
	if !seen || last == state {
		return nil
	}

	var entered []string
	for mode, value := range Modes {
		if state != value {
			continue
		}
		if c.total[device] == nil {
			c.total[device] = make(map[string]int)
			c.daily[device] = make(map[string]int)
		}
		c.total[device][mode]++
		c.daily[device][mode]++
		entered = append(entered, mode)
	}
	return entered
}

// snapshot returns "<mode>_cycling_total" (offset applied) and
// "<mode>_cycling_daily" values for every observed heat pump.
func (c *cycleCounter) snapshot() map[string]map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]float64, len(c.lastState))
	for device := range c.lastState {
		values := make(map[string]float64, 2*len(Modes))
		for mode := range Modes {
			total := mode + SuffixTotal
			values[total] = float64(c.total[device][mode]) + c.offsets(device, total)
			values[mode+SuffixDaily] = float64(c.daily[device][mode])
		}
		out[device] = values
	}
	return out
}

func (c *cycleCounter) resetDaily() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for device := range c.daily {
		c.daily[device] = make(map[string]int)
	}
}
