// Package config loads, normalizes, and validates sceneflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCENEFLOW_USERNAME and SCENEFLOW_PASSWORD. Scene filter dates are parsed once
// here so the transfer manager receives ready-to-use ranges.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
