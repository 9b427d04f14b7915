// Package config loads, normalizes, and validates mailroom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GROQ_API_KEY, OPENAI_API_BASE, and OPENAI_MODEL_NAME. The Config type
// centralizes every knob the CLI, watcher daemon, and MCP server need so the
// attachments folder, ledger location, and LLM credentials are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extensions, and clear validation errors.
package config
