// Package config loads, normalizes, and validates reeler configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file from the working directory,
// and honours environment fallbacks such as REELER_PORTAL_PASSWORD. The Config
// type centralizes every knob the downloader, converter, and coordinator
// service need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
