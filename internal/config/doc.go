// Package config loads, normalizes, and validates scriptreel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCRIPTREEL_GENERATION_API_KEY and OPENROUTER_API_KEY. The Config type
// centralizes every knob the CLI needs so segmentation constraints, retry
// policy, cache backend, and service credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
