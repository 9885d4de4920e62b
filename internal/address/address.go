// Package address plans Modbus base addresses for the devices of a Lambda
// installation. Each category occupies its own thousand-block and each
// device within a category a hundred-register slice of it.
package address

import (
	"sort"
	"strconv"
)

// Category is a device category of a Lambda installation.
type Category string

// Device categories.
const (
	HeatPump       Category = "hp"
	Boiler         Category = "boil"
	Buffer         Category = "buff"
	Solar          Category = "sol"
	HeatingCircuit Category = "hc"
)

// Stride is the register distance between consecutive devices of a category.
const Stride = 100

var bases = map[Category]int{
	HeatPump:       1000,
	Boiler:         2000,
	Buffer:         3000,
	Solar:          4000,
	HeatingCircuit: 5000,
}

// Categories returns the known categories in address order.
func Categories() []Category {
	out := make([]Category, 0, len(bases))
	for c := range bases {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return bases[out[i]] < bases[out[j]] })
	return out
}

// Base returns the base address of the first device of a category.
func Base(c Category) (int, bool) {
	b, ok := bases[c]
	return b, ok
}

// Plan returns the base addresses of devices 1..count of category c:
// element i-1 holds the address of device i. Unknown categories and
// non-positive counts yield an empty plan.
func Plan(c Category, count int) []int {
	base, ok := bases[c]
	if !ok || count <= 0 {
		return []int{}
	}
	out := make([]int, count)
	for i := range out {
		out[i] = base + i*Stride
	}
	return out
}

// Counts is the per-category device count of an installation.
type Counts map[Category]int

// PlanAll plans every category present in counts.
func PlanAll(counts Counts) map[Category][]int {
	out := make(map[Category][]int, len(counts))
	for c, n := range counts {
		out[c] = Plan(c, n)
	}
	return out
}

// DeviceName names device n (1-based) of a category, e.g. "hp1".
func DeviceName(c Category, n int) string {
	return string(c) + strconv.Itoa(n)
}
