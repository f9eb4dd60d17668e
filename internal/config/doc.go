// Package config loads, normalizes, and validates magpie's TOML configuration.
package config
