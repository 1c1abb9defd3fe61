// Package config loads, normalizes, and validates folderexport configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a local .env file, and honours
// environment fallbacks such as FOLDEREXPORT_POSTGRES_URL. The Config type
// centralizes every knob the daemon and CLI need, so the export directory, job
// store, catalog location, and worker settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
