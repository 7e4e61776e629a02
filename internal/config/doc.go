// Package config handles configuration loading for agentdesk.
//
// # Configuration File
//
// Locations, in order:
//
//  1. Path from the AGENTDESK_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/agentdesk/agentdesk.yaml
//  3. ~/.config/agentdesk/agentdesk.yaml
//
// Files ending in .toml are read as TOML; anything else is YAML. Both
// formats use the same keys.
//
// # Environment Variable Expansion
//
// Values can reference environment variables before parsing:
//
//	llm:
//	  api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string. AGENTDESK_DB_PATH, when set,
// replaces database.path.
//
// # Durations
//
// agents.invoke_timeout, providers.timeout and dedupe.ttl are Go duration
// strings ("60s", "5m").
package config
