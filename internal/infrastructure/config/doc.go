// Package config handles loading and validating dcsense-core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DCSENSE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The credential key and broker/InfluxDB secrets should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Changing security.credentials.key invalidates every stored credential digest
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
