// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// AzureAPIVersion is the api-version sent to the enterprise provider. It is
// pinned and never negotiated with the client.
const AzureAPIVersion = "2023-05-15"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/llm-gateway/config.toml",
	"configs/config.toml",
}

// defaultDeployments lists the logical models known out of the box. An empty
// deployment name means the model is disabled.
var defaultDeployments = map[string]string{
	"gpt-3.5-turbo":      "",
	"gpt-3.5-turbo-0301": "",
	"gpt-4":              "",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	AzureResource   string            `kong:"help='Azure OpenAI resource name.',env='AOAI_RESOURCE_NAME'"`
	AzureKey        string            `kong:"help='Azure OpenAI API key.',env='AOAI_KEY'"`
	DeployGPT35     string            `kong:"name='deploy-gpt35',help='Deployment for gpt-3.5-turbo.',env='DEPLOY_NAME_GPT35'"`
	DeployGPT350301 string            `kong:"name='deploy-gpt35-0301',help='Deployment for gpt-3.5-turbo-0301.',env='DEPLOY_NAME_GPT35_0301'"`
	DeployGPT4      string            `kong:"name='deploy-gpt4',help='Deployment for gpt-4.',env='DEPLOY_NAME_GPT4'"`
	Deployment      map[string]string `kong:"help='Extra model=deployment mappings.',env='DEPLOYMENTS'"`

	OpenAIBaseURL   string `kong:"name='openai-base-url',help='Generic provider base URL.',env='OPENAI_BASE_URL'"`
	OpenAIOrgID     string `kong:"name='openai-org-id',help='Generic provider organization.',env='OPENAI_ORG_ID'"`
	OpenAIToken     string `kong:"name='openai-token',help='Generic provider bearer token.',env='OPENAI_TOKEN'"`
	EntrypointToken string `kong:"help='Token presented to (or required from) a chained gateway.',env='ENTRYPOINT_TOKEN'"`
	RelayHostname   string `kong:"help='Upstream host for relay mode.',env='OPENAI_HOSTNAME'"`

	CORSOrigins     []string `kong:"name='cors-origins',help='Allowed CORS origins.',env='CORS_ALLOWED_ORIGINS'"`
	AllowedCodes    []string `kong:"help='Access codes accepted in addition to the codes file.',env='ALLOWED_CODE_LIST'"`
	AccessCodesFile string   `kong:"help='Path to the access-code JSON file.',env='ACCESS_CODES_FILE'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	CORS     CORSConfig     `toml:"cors"`
	Azure    AzureConfig    `toml:"azure"`
	OpenAI   OpenAIConfig   `toml:"openai"`
	Relay    RelayConfig    `toml:"relay"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"`     // 0 means "use default" (8080)
	TLSPort      int             `toml:"tls_port"` // 0 means "use default" (8443); only used with cert_file
	CertFile     string          `toml:"cert_file"`
	KeyFile      string          `toml:"key_file"`
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// AuthConfig controls access-code authorization.
type AuthConfig struct {
	AccessCodesFile string   `toml:"access_codes_file"`
	AllowedCodes    []string `toml:"allowed_codes"`
	Watch           bool     `toml:"watch"`
}

// CORSConfig controls the origin gate.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	// AllowAll adds Access-Control-Allow-Origin: * to responses when no
	// allow-list is configured.
	AllowAll bool `toml:"allow_all"`
}

// AzureConfig holds enterprise-deployment provider settings.
type AzureConfig struct {
	ResourceName   string            `toml:"resource_name"`
	APIKey         string            `toml:"api_key"`
	Domain         string            `toml:"domain"`
	Endpoint       string            `toml:"endpoint"` // overrides https://{resource}.{domain}
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Deployments    map[string]string `toml:"deployments"`
}

// OpenAIConfig holds generic provider settings.
type OpenAIConfig struct {
	BaseURL         string `toml:"base_url"`
	Token           string `toml:"token"`
	OrgID           string `toml:"org_id"`
	EntrypointToken string `toml:"entrypoint_token"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// RelayConfig holds second-hop relay settings.
type RelayConfig struct {
	Enabled         bool   `toml:"enabled"`
	UpstreamURL     string `toml:"upstream_url"`
	EntrypointToken string `toml:"entrypoint_token"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// UpstreamConfig holds shared upstream connection settings.
type UpstreamConfig struct {
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoadDotenv loads the first existing dotenv file into the process
// environment without overriding variables that are already set. DOTENV_PATH
// takes precedence over the given paths. It returns the file that was loaded.
func LoadDotenv(paths ...string) string {
	if p := os.Getenv("DOTENV_PATH"); p != "" {
		paths = append([]string{p}, paths...)
	}
	p := findConfigInPaths(paths)
	if p == "" {
		return ""
	}
	if err := godotenv.Load(p); err != nil {
		return ""
	}
	return p
}

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/llm-gateway/config.toml then configs/config.toml. A gateway configured
// purely through the environment runs without a file.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}

	if cli.AzureResource != "" {
		c.Azure.ResourceName = cli.AzureResource
	}
	if cli.AzureKey != "" {
		c.Azure.APIKey = cli.AzureKey
	}
	if c.Azure.Deployments == nil {
		c.Azure.Deployments = make(map[string]string)
	}
	for model, deployment := range map[string]string{
		"gpt-3.5-turbo":      cli.DeployGPT35,
		"gpt-3.5-turbo-0301": cli.DeployGPT350301,
		"gpt-4":              cli.DeployGPT4,
	} {
		if deployment != "" {
			c.Azure.Deployments[model] = deployment
		}
	}
	for model, deployment := range cli.Deployment {
		c.Azure.Deployments[model] = deployment
	}

	if cli.OpenAIBaseURL != "" {
		c.OpenAI.BaseURL = cli.OpenAIBaseURL
	}
	if cli.OpenAIOrgID != "" {
		c.OpenAI.OrgID = cli.OpenAIOrgID
	}
	if cli.OpenAIToken != "" {
		c.OpenAI.Token = cli.OpenAIToken
	}
	if cli.EntrypointToken != "" {
		c.OpenAI.EntrypointToken = cli.EntrypointToken
		c.Relay.EntrypointToken = cli.EntrypointToken
	}
	if cli.RelayHostname != "" {
		c.Relay.Enabled = true
		c.Relay.UpstreamURL = "https://" + cli.RelayHostname
	}

	if len(cli.CORSOrigins) > 0 {
		c.CORS.AllowedOrigins = cli.CORSOrigins
	}
	if len(cli.AllowedCodes) > 0 {
		c.Auth.AllowedCodes = cli.AllowedCodes
	}
	if cli.AccessCodesFile != "" {
		c.Auth.AccessCodesFile = cli.AccessCodesFile
	}
}

func (c *Config) validate() error {
	if c.Azure.APIKey == "YOUR_API_KEY_HERE" || c.OpenAI.Token == "YOUR_API_KEY_HERE" {
		return errors.New("placeholder credential found; set a real key or leave it empty")
	}

	if err := validateBaseURL("openai.base_url", c.OpenAI.BaseURL); err != nil {
		return err
	}
	if c.Azure.Endpoint != "" {
		if err := validateBaseURL("azure.endpoint", c.Azure.Endpoint); err != nil {
			return err
		}
	}
	if c.Azure.APIKey != "" && c.Azure.ResourceName == "" && c.Azure.Endpoint == "" {
		return errors.New("azure.resource_name is required when azure.api_key is set")
	}

	if c.Relay.Enabled {
		if c.Relay.EntrypointToken == "" {
			return errors.New("relay.entrypoint_token is required when relay is enabled")
		}
		if err := validateBaseURL("relay.upstream_url", c.Relay.UpstreamURL); err != nil {
			return err
		}
	}

	// Numeric bounds.
	for name, port := range map[string]int{"server.port": c.Server.Port, "server.tls_port": c.Server.TLSPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s must be 0–65535; got %d", name, port)
		}
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("server.cert_file and server.key_file must be set together")
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	for name, v := range map[string]int{
		"azure.timeout_seconds":     c.Azure.TimeoutSeconds,
		"openai.timeout_seconds":    c.OpenAI.TimeoutSeconds,
		"relay.timeout_seconds":     c.Relay.TimeoutSeconds,
		"upstream.idle_connections": c.Upstream.IdleConnections,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", name, v)
		}
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	for _, origin := range c.CORS.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return errors.New("cors.allowed_origins must not contain empty entries")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api/azure", "/api/openai", "/v1", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%s must use http or https; got %q", name, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host; got %q", name, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with defaults. Integer fields treat zero
// as unset because TOML cannot distinguish an explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TLSPort == 0 {
		c.Server.TLSPort = 8443
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Auth.AccessCodesFile == "" {
		c.Auth.AccessCodesFile = "access-codes.json"
	}
	if c.Azure.Domain == "" {
		c.Azure.Domain = "openai.azure.com"
	}
	if c.Azure.TimeoutSeconds == 0 {
		c.Azure.TimeoutSeconds = 20
	}
	if c.Azure.Deployments == nil {
		c.Azure.Deployments = make(map[string]string)
	}
	for model, deployment := range defaultDeployments {
		if _, ok := c.Azure.Deployments[model]; !ok {
			c.Azure.Deployments[model] = deployment
		}
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com"
	}
	if c.OpenAI.TimeoutSeconds == 0 {
		c.OpenAI.TimeoutSeconds = 58
	}
	if c.Relay.UpstreamURL == "" {
		c.Relay.UpstreamURL = "https://api.openai.com"
	}
	if c.Relay.TimeoutSeconds == 0 {
		c.Relay.TimeoutSeconds = 10
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the plain HTTP listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSAddr returns the TLS listen address as host:port.
func (c *ServerConfig) TLSAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.TLSPort)
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// WarnPermissions logs a warning if the config file or the access-code file is
// readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	for _, path := range []string{c.filePath, c.Auth.AccessCodesFile} {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			logger.Warn("file is readable by group/others; consider chmod 600",
				"path", path,
				"mode", fmt.Sprintf("%04o", perm),
			)
		}
	}
}
