package provision

// FileName is the name of the per-installation config file.
const FileName = "lambda_wp_config.yaml"

const defaultTemplate = `# Lambda heat pump integration configuration
#
# Registers listed here are never polled. Useful for firmware that does
# not implement a register and answers with a Modbus exception.
#disabled_registers:
#  - 2004
#  - 2005
disabled_registers: []

# Override the display name of individual sensors.
#sensors_names_override:
#  - id: hp1_flow_line_temperature
#    override_name: Vorlauf
sensors_names_override: []

` + cyclingOffsetsBlock

// cyclingOffsetsBlock is appended to files that predate cycling offsets.
const cyclingOffsetsBlock = `# Cycling counter offsets for total sensors
# These offsets are added to the calculated cycling counts.
# Useful when replacing heat pumps or resetting counters.
cycling_offsets:
  hp1:
    heating_cycling_total: 0
    hot_water_cycling_total: 0
    cooling_cycling_total: 0
    defrost_cycling_total: 0
`
