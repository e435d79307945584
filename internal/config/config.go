package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/turnwire/turnwire/pkg/types"
)

// Load assembles configuration from every source, later sources winning:
//  1. Global config (~/.turnwire/)
//  2. Global config (~/.config/turnwire/ - XDG compatible)
//  3. Project config (./turnwire.json, .turnwire/)
//  4. TURNWIRE_CONFIG file
//  5. TURNWIRE_CONFIG_CONTENT inline JSON
//  6. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	// A file reachable through two locations merges once.
	loaded := make(map[string]bool)
	loadOnce := func(path, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}
	loadDir := func(dir string) {
		loadOnce(filepath.Join(dir, "turnwire.json"), dir)
		loadOnce(filepath.Join(dir, "turnwire.jsonc"), dir)
	}

	if home := os.Getenv("HOME"); home != "" {
		loadDir(filepath.Join(home, ".turnwire"))
	}
	loadDir(GetPaths().Config)
	if directory != "" {
		loadDir(directory)
		loadDir(filepath.Join(directory, ".turnwire"))
	}

	if configPath := os.Getenv("TURNWIRE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	if content := os.Getenv("TURNWIRE_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal([]byte(content), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	return config, nil
}

// loadConfigFile merges a single JSON/JSONC file into config. A missing
// file is not an error to the caller; Load just skips it.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var (
	envPlaceholder  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePlaceholder = regexp.MustCompile(`\{file:([^}]+)\}`)
	jsonEscaper     = strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
		"\r", "\\r",
		"\t", "\\t",
	)
)

// interpolate expands {env:VAR} and {file:path} placeholders before the
// JSON is parsed. Relative file paths resolve against the config file's
// directory; an unreadable file leaves the placeholder in place.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPlaceholder.ReplaceAllStringFunc(str, func(match string) string {
		return os.Getenv(envPlaceholder.FindStringSubmatch(match)[1])
	})

	str = filePlaceholder.ReplaceAllStringFunc(str, func(match string) string {
		path := filePlaceholder.FindStringSubmatch(match)[1]
		switch {
		case strings.HasPrefix(path, "~/"):
			path = filepath.Join(os.Getenv("HOME"), path[2:])
		case !filepath.IsAbs(path):
			path = filepath.Join(baseDir, path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return match
		}
		return jsonEscaper.Replace(string(content))
	})

	return []byte(str)
}

// mergeConfig overlays source onto target. Scalars win when set; the
// provider map merges per entry; sink blocks replace whole.
func mergeConfig(target, source *types.Config) {
	setString := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}

	setString(&target.Schema, source.Schema)

	setString(&target.Server.Host, source.Server.Host)
	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if source.Server.EnableCORS {
		target.Server.EnableCORS = true
	}
	if source.Server.ReadTimeout != 0 {
		target.Server.ReadTimeout = source.Server.ReadTimeout
	}

	setString(&target.Transport.Kind, source.Transport.Kind)
	setString(&target.Transport.Scenario, source.Transport.Scenario)
	setString(&target.Transport.Provider, source.Transport.Provider)
	setString(&target.Transport.Model, source.Transport.Model)
	setString(&target.Transport.Remote, source.Transport.Remote)

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Tools.Enable {
		target.Tools.Enable = true
	}
	setString(&target.Tools.WorkDir, source.Tools.WorkDir)
	if len(source.Tools.BashAllow) > 0 {
		target.Tools.BashAllow = source.Tools.BashAllow
	}

	if source.Sink.Redis != nil {
		target.Sink.Redis = source.Sink.Redis
	}
	if source.Sink.Journal != nil {
		target.Sink.Journal = source.Sink.Journal
	}

	setString(&target.Log.Level, source.Log.Level)
	if source.Log.Pretty {
		target.Log.Pretty = true
	}
}

// providerKeyEnv maps provider IDs to the env var carrying their key.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"ark":       "ARK_API_KEY",
}

// applyEnvOverrides is the last merge layer before defaults.
func applyEnvOverrides(config *types.Config) {
	for provider, envVar := range providerKeyEnv {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		if config.Provider == nil {
			config.Provider = make(map[string]types.ProviderConfig)
		}
		// A key set in a config file wins over the environment.
		if p := config.Provider[provider]; p.APIKey == "" {
			p.APIKey = apiKey
			config.Provider[provider] = p
		}
	}

	if kind := os.Getenv("TURNWIRE_TRANSPORT"); kind != "" {
		config.Transport.Kind = kind
	}
	if scenario := os.Getenv("TURNWIRE_SCENARIO"); scenario != "" {
		config.Transport.Scenario = scenario
	}
	if model := os.Getenv("TURNWIRE_MODEL"); model != "" {
		config.Transport.Model = model
	}
	if remote := os.Getenv("TURNWIRE_REMOTE"); remote != "" {
		config.Transport.Remote = remote
	}

	if addr := os.Getenv("TURNWIRE_REDIS_ADDR"); addr != "" {
		if config.Sink.Redis == nil {
			config.Sink.Redis = &types.RedisSinkConfig{}
		}
		config.Sink.Redis.Addr = addr
	}

	if level := os.Getenv("TURNWIRE_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

// applyDefaults fills anything still unset with working values.
func applyDefaults(config *types.Config) {
	if config.Server.Host == "" {
		config.Server.Host = "127.0.0.1"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 4747
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30
	}
	if config.Transport.Kind == "" {
		config.Transport.Kind = "provider"
	}
	if config.Transport.Provider == "" {
		config.Transport.Provider = "anthropic"
	}
	if config.Transport.Model == "" {
		config.Transport.Model = "claude-sonnet-4-20250514"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

// Save writes the configuration to path, creating parent directories.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetConfigDir returns the config directory to use. TURNWIRE_CONFIG_DIR
// wins, then an existing ~/.turnwire, then the XDG location.
func GetConfigDir() string {
	if dir := os.Getenv("TURNWIRE_CONFIG_DIR"); dir != "" {
		return dir
	}

	if home := os.Getenv("HOME"); home != "" {
		dotDir := filepath.Join(home, ".turnwire")
		if _, err := os.Stat(dotDir); err == nil {
			return dotDir
		}
	}

	return GetPaths().Config
}
