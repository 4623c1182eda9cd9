// Package config loads the VoiceDot runtime configuration from a JSON file,
// expands ${VAR} references, and applies environment overrides for chain
// endpoints, ledger storage and secrets. A missing file yields an all
// in-memory configuration suitable for local development.
package config
