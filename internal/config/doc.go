// Package config loads, normalizes, and validates vidintel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and VIDINTEL_LLM_API_KEY. A .env file next to the config
// file is applied before environment lookups.
//
// Provider selection errors (unknown STT or embedding providers, missing
// keys) wrap services.ErrConfiguration so callers can classify them.
package config
