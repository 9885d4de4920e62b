// Package config handles loading and validating lambdawp daemon configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LAMBDAWP_* environment variables
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables or a .env file next to the binary.
//
// Usage:
//
//	cfg, err := config.Load("configs/lambdawp.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Host.ConfigDir)
package config
