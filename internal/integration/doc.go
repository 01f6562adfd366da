// Package integration provides cross-package integration tests for conclave.
// These tests wire config, the agent factory, the orchestrators, dialogues
// and the state database together using real command agents.
//
// Build tag: integration
// Run with: go test -tags integration ./internal/integration/...
package integration
