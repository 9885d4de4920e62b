package coordinator

import (
	"github.com/nerrad567/lambda-heatpumps/internal/address"
)

// Register describes one holding register relative to a device base address.
type Register struct {
	Offset      int
	Key         string
	Scale       float64
	Unit        string
	DeviceClass string
}

// Operating states of a heat pump that count as a cycle when entered.
const (
	StateHeating  = 1
	StateHotWater = 2
	StateCooling  = 3
	StateDefrost  = 5
)

// Modes maps cycling counter names to the operating state that starts them.
var Modes = map[string]int{
	"heating":   StateHeating,
	"hot_water": StateHotWater,
	"cooling":   StateCooling,
	"defrost":   StateDefrost,
}

// OperatingStateKey is the heat pump register driving the cycling counters.
const OperatingStateKey = "operating_state"

var templates = map[address.Category][]Register{
	address.HeatPump: {
		{Offset: 0, Key: "error_state"},
		{Offset: 1, Key: "error_number"},
		{Offset: 2, Key: "state"},
		{Offset: 3, Key: OperatingStateKey},
		{Offset: 4, Key: "flow_line_temperature", Scale: 0.01, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 5, Key: "return_line_temperature", Scale: 0.01, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 6, Key: "volume_flow_heat_sink", Scale: 1, Unit: "l/h"},
		{Offset: 7, Key: "energy_source_inlet_temperature", Scale: 0.01, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 8, Key: "energy_source_outlet_temperature", Scale: 0.01, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 10, Key: "compressor_rating", Scale: 0.01, Unit: "%"},
		{Offset: 11, Key: "actual_heating_capacity", Scale: 0.1, Unit: "kW", DeviceClass: "power"},
		{Offset: 12, Key: "inverter_actual_power", Scale: 1, Unit: "W", DeviceClass: "power"},
		{Offset: 13, Key: "cop", Scale: 0.01},
	},
	address.Boiler: {
		{Offset: 0, Key: "error_number"},
		{Offset: 1, Key: "operating_state"},
		{Offset: 2, Key: "actual_high_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 3, Key: "actual_low_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
	},
	address.Buffer: {
		{Offset: 0, Key: "error_number"},
		{Offset: 1, Key: "operating_state"},
		{Offset: 2, Key: "actual_high_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 3, Key: "actual_low_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
	},
	address.Solar: {
		{Offset: 0, Key: "error_number"},
		{Offset: 1, Key: "operating_state"},
		{Offset: 2, Key: "collector_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 3, Key: "buffer1_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 4, Key: "buffer2_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
	},
	address.HeatingCircuit: {
		{Offset: 0, Key: "error_number"},
		{Offset: 1, Key: "operating_state"},
		{Offset: 2, Key: "flow_line_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 3, Key: "return_line_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 4, Key: "room_device_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 5, Key: "set_flow_line_temperature", Scale: 0.1, Unit: "°C", DeviceClass: "temperature"},
		{Offset: 6, Key: "operating_mode"},
	},
}

// Registers returns the register template of a category, ordered by offset.
func Registers(c address.Category) []Register {
	regs := templates[c]
	out := make([]Register, len(regs))
	copy(out, regs)
	return out
}

// scale returns the multiplier, treating an unset scale as 1.
func (r Register) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// block is a contiguous range of registers read with one request.
type block struct {
	start int
	regs  []Register
}

// blocks groups the registers of a device at base into contiguous reads,
// splitting around gaps and disabled addresses.
func blocks(base int, regs []Register, disabled func(int) bool) []block {
	var out []block
	open := false
	for _, r := range regs {
		addr := base + r.Offset
		if disabled != nil && disabled(addr) {
			open = false
			continue
		}
		if open {
			cur := &out[len(out)-1]
			if base+cur.regs[len(cur.regs)-1].Offset+1 == addr {
				cur.regs = append(cur.regs, r)
				continue
			}
		}
		out = append(out, block{start: addr, regs: []Register{r}})
		open = true
	}
	return out
}
