package config

// Config is the umbrella configuration object returned by Initialize()
// and threaded through the application.
type Config struct {
	configDir string

	// HTTP listener settings
	Server *ServerConfig

	// SQLite storage settings
	Database *DatabaseConfig

	// Signals provider (procurement data) settings
	Signals *SignalsConfig

	// Generator (LLM sub-agent CLI) settings
	Generator *GeneratorConfig

	// Publisher (workspace page) settings
	Publisher *PublisherConfig

	// Runtime-tunable registry; runs snapshot it at admission
	Tunables *Registry
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Snapshot is shorthand for c.Tunables.Snapshot().
func (c *Config) Snapshot() Tunables {
	return c.Tunables.Snapshot()
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DefaultServerConfig returns the built-in listener defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host: "127.0.0.1",
		Port: 8111,
	}
}

// DatabaseConfig locates the SQLite file. The parent directory is
// created on first open.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DefaultDatabaseConfig returns the built-in storage defaults.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Path: "data/pipeline.db",
	}
}

// SignalsConfig points at the procurement signals provider. Each
// operation is a deployed app addressed as {base_url}/{app}; long
// running operations submit to {base_url}/{app}/async and poll
// {base_url}/run/{run_id}/output.
type SignalsConfig struct {
	BaseURL   string            `yaml:"base_url"`
	APIKeyEnv string            `yaml:"api_key_env"`
	Apps      map[string]string `yaml:"apps"`

	// APIKey is resolved from APIKeyEnv during Initialize.
	APIKey string `yaml:"-"`
}

// Signals app names addressed under SignalsConfig.Apps.
const (
	AppOpportunitySearch = "opportunity_search"
	AppBuyerSearch       = "buyer_search"
	AppBuyerProfile      = "buyer_profile"
	AppBuyerContacts     = "buyer_contacts"
	AppBuyerChat         = "buyer_chat"
)

// DefaultSignalsConfig returns the built-in provider defaults.
func DefaultSignalsConfig() *SignalsConfig {
	return &SignalsConfig{
		BaseURL:   "https://api.govsignal.dev/apps",
		APIKeyEnv: "SIGNALS_API_KEY",
		Apps: map[string]string{
			AppOpportunitySearch: "opportunity-search",
			AppBuyerSearch:       "buyer-search",
			AppBuyerProfile:      "buyer-profile",
			AppBuyerContacts:     "buyer-contacts",
			AppBuyerChat:         "buyer-chat",
		},
	}
}

// GeneratorConfig names the sub-agent CLI binary and the env var that
// must carry its credential. The credential being unset is a fatal
// startup error.
type GeneratorConfig struct {
	Binary   string `yaml:"binary"`
	TokenEnv string `yaml:"token_env"`
}

// DefaultGeneratorConfig returns the built-in generator defaults.
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Binary:   "claude",
		TokenEnv: "CLAUDE_CODE_OAUTH_TOKEN",
	}
}

// PublisherConfig points at the workspace REST surface used to create
// and update report pages.
type PublisherConfig struct {
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`

	// Token is resolved from TokenEnv during Initialize.
	Token string `yaml:"-"`
}

// DefaultPublisherConfig returns the built-in publisher defaults.
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		BaseURL:  "https://workspace.govsignal.dev/v1",
		TokenEnv: "WORKSPACE_TOKEN",
	}
}
