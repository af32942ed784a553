// Package config handles loading and validating natsfixture configuration.
//
// This package manages:
//   - Loading configuration from a YAML file
//   - Overriding with NATSFIXTURE_* environment variables
//   - Validation of enabled sections
//   - Default value handling
//
// The instance section feeds the server option layers: typed fields such as
// port and version become EXPLICIT options, the options map becomes the FILE
// layer. NATS_* variables are read separately by the supervisor.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("natsfixture.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Instance.Port)
package config
