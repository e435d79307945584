package types

// Config represents the turnwire configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// HTTP server settings
	Server ServerConfig `json:"server"`

	// Transport selection and settings
	Transport TransportConfig `json:"transport"`

	// Provider configs keyed by provider id ("anthropic", "openai", "ark")
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Tool execution settings
	Tools ToolsConfig `json:"tools"`

	// Event sink settings
	Sink SinkConfig `json:"sink"`

	// Logging settings
	Log LogConfig `json:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	EnableCORS bool   `json:"enableCors,omitempty"`

	// Seconds; write timeout stays 0 so SSE connections are never cut.
	ReadTimeout int `json:"readTimeout,omitempty"`
}

// TransportConfig selects and configures the event transport.
type TransportConfig struct {
	// Kind is "script", "provider", or "sse".
	Kind string `json:"kind,omitempty"`

	// Script transport: scenario file and pacing.
	Scenario string `json:"scenario,omitempty"`

	// Provider transport: which provider/model drives the turn.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// SSE transport: base URL of the remote coordinator.
	Remote string `json:"remote,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey    string `json:"apiKey,omitempty"`
	BaseURL   string `json:"baseURL,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	Disable   bool   `json:"disable,omitempty"`
}

// ToolsConfig controls local tool execution on the provider transport.
type ToolsConfig struct {
	// Enable turns local tool execution on.
	Enable bool `json:"enable,omitempty"`

	// WorkDir is where tools run. Defaults to the process working directory.
	WorkDir string `json:"workDir,omitempty"`

	// BashAllow lists the commands the bash tool may run, as "name",
	// "name subcommand", or "*". Empty denies every command.
	BashAllow []string `json:"bashAllow,omitempty"`
}

// SinkConfig holds event mirroring settings.
type SinkConfig struct {
	Redis   *RedisSinkConfig   `json:"redis,omitempty"`
	Journal *JournalSinkConfig `json:"journal,omitempty"`
}

// RedisSinkConfig mirrors envelopes into per-session Redis lists.
type RedisSinkConfig struct {
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
	TTLHours  int    `json:"ttlHours,omitempty"`
}

// JournalSinkConfig appends envelopes to JSONL files under Dir.
type JournalSinkConfig struct {
	Dir string `json:"dir,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	ProviderID        string  `json:"providerID"`
	ContextLength     int     `json:"contextLength"`
	MaxOutputTokens   int     `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool    `json:"supportsTools"`
	SupportsReasoning bool    `json:"supportsReasoning,omitempty"`
	InputPrice        float64 `json:"inputPrice,omitempty"`  // USD per 1M tokens
	OutputPrice       float64 `json:"outputPrice,omitempty"` // USD per 1M tokens
}

// Cost computes the USD cost of a turn from its token usage.
func (m Model) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*m.InputPrice/1e6 + float64(completionTokens)*m.OutputPrice/1e6
}
