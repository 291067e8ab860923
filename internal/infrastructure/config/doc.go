// Package config provides configuration loading for GridPulse Core.
//
// Configuration is loaded from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variable overrides (GRIDPULSE_SECTION_KEY)
//
// The loaded configuration is validated before use; validation collects
// every problem into a single error so operators can fix a broken file
// in one pass.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Secrets (the store access token) should be supplied via environment
// variables rather than committed to the YAML file.
package config
