// Package app wires the license service together and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from the YAML file and LICENSE_* environment
//	2. Initialize logging and OpenTelemetry
//	3. Open the storage backend (file, sqlite, redis or memory)
//	4. Build the license engine and subscribe the websocket hub to its bus
//	5. Set up HTTP handlers and middleware
//
// # Usage
//
//	application, err := app.NewApplication(configPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until ctx is cancelled or the server fails, then shuts the
// server, hub and telemetry down in order.
package app
