// Package config handles loading and validating the fixture sequencer configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (FIXTURE_*)
//   - Validation of required fields
//   - Default values for the standard 5-board, 3-slot fixture
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Fixture.SlotsPerBoard)
package config
