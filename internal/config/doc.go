// Package config provides configuration loading, merging, and path
// management for turnwire.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.turnwire/)
//  2. Global config (~/.config/turnwire/ - XDG compatible)
//  3. Project config (turnwire.json/turnwire.jsonc and
//     .turnwire/turnwire.json/.turnwire/turnwire.jsonc)
//  4. TURNWIRE_CONFIG file
//  5. TURNWIRE_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Later sources override earlier ones field by field; environment
// variables have the highest precedence. Fields still unset after
// merging receive working defaults (loopback server, provider
// transport, info logging).
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted:
//   - turnwire.json - Standard JSON configuration
//   - turnwire.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two placeholder forms:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (escaped for JSON)
//
// File paths in {file:path} placeholders support absolute paths,
// relative paths (resolved against the config file's directory), and
// home expansion (~/).
//
// Example:
//
//	{
//	  "transport": { "kind": "provider", "model": "claude-sonnet-4-20250514" },
//	  "provider": {
//	    "anthropic": { "apiKey": "{env:ANTHROPIC_API_KEY}" }
//	  },
//	  "sink": {
//	    "redis": { "addr": "localhost:6379", "ttlHours": 24 }
//	  }
//	}
//
// # Environment Variable Overrides
//
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY / ARK_API_KEY - provider keys
//   - TURNWIRE_TRANSPORT - transport kind (script, provider, sse)
//   - TURNWIRE_SCENARIO - scenario file for the script transport
//   - TURNWIRE_MODEL - model id for the provider transport
//   - TURNWIRE_REMOTE - base URL for the sse transport
//   - TURNWIRE_REDIS_ADDR - redis sink address
//   - TURNWIRE_LOG_LEVEL - log level
//   - TURNWIRE_CONFIG - path to a specific config file
//   - TURNWIRE_CONFIG_CONTENT - inline JSON configuration
//   - TURNWIRE_CONFIG_DIR - override the config directory location
//
// # Path Management
//
// The Paths type follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/turnwire (XDG_DATA_HOME)
//   - Config: ~/.config/turnwire (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/turnwire (XDG_CACHE_HOME)
//   - State: ~/.local/state/turnwire (XDG_STATE_HOME)
//
// On Windows these map to APPDATA as appropriate. The journal sink
// defaults to Paths.JournalPath() when no directory is configured.
package config
