// Package config provides configuration loading and management for the registry watcher.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/registry-watcher/internal/job"
	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of every environment variable read by the watcher
	EnvPrefix = "REGISTRY_WATCHER"

	// DefaultCheckInterval is used when checkInterval is not set
	DefaultCheckInterval = 60 * time.Minute

	// DefaultStateFile is where the snapshot is kept when stateFile is not set
	DefaultStateFile = state.DefaultStateFile

	// DefaultRegistryTimeout bounds a single registry request
	DefaultRegistryTimeout = 10 * time.Second

	// DefaultRegistryMaxRetries is how often a failed registry request is retried
	DefaultRegistryMaxRetries = 3

	// DefaultWebhookMethod is used when a webhook does not set httpMethod
	DefaultWebhookMethod = http.MethodPost

	// KeyringService is the system keyring service holding SMTP passwords, keyed by instance name
	KeyringService = "registry-watcher"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// CheckInterval is the number of minutes between two polls
	CheckInterval float64 `yaml:"checkInterval,omitempty"`

	// StateFile is the path of the persisted snapshot
	StateFile string `yaml:"stateFile,omitempty"`

	Registry  *RegistryConfig   `yaml:"registry,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	NotifyServices []NotifyServiceConfig        `yaml:"notifyServices"`
	WebHooks       map[string]WebHookConfig     `yaml:"webHooks,omitempty"`
	SMTPServers    map[string]SMTPServerConfig `yaml:"smtpServer,omitempty"`
}

// RegistryConfig defines how the registry API is reached
type RegistryConfig struct {
	// BaseURL is the API endpoint (without path)
	BaseURL string `yaml:"baseURL,omitempty"`

	// Timeout bounds a single request (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is the number of retries of a transient failure
	MaxRetries *uint `yaml:"maxRetries,omitempty"`

	// RequestsPerSecond paces registry requests, 0 for no limit
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// Burst is how many requests may go out at once under RequestsPerSecond (default 1)
	Burst int `yaml:"burst,omitempty"`
}

// NotifyServiceConfig is one tracked image with its actions
type NotifyServiceConfig struct {
	// Image is a reference of the form [user/]name[:tag]
	Image   string         `yaml:"image"`
	Actions []ActionConfig `yaml:"actions"`
}

// ActionConfig declares a notification action
type ActionConfig struct {
	Type      string `yaml:"type"`
	Instance  string `yaml:"instance,omitempty"`
	Recipient string `yaml:"recipient,omitempty"`
}

// WebHookConfig defines a named webhook
type WebHookConfig struct {
	HTTPMethod  string            `yaml:"httpMethod,omitempty"`
	ReqURL      string            `yaml:"reqUrl"`
	HTTPHeaders map[string]string `yaml:"httpHeaders,omitempty"`

	// HTTPBody is either a template string or a structured value sent as JSON
	HTTPBody any `yaml:"httpBody,omitempty"`
}

// SMTPServerConfig defines a named SMTP server
type SMTPServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Secure   bool   `yaml:"secure,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// PasswordFile is the path to a file containing the password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// PasswordKeyring looks the password up in the system keyring
	PasswordKeyring bool `yaml:"passwordKeyring,omitempty"`

	SenderName    string `yaml:"sendername,omitempty"`
	SenderAddress string `yaml:"senderadress"`
}

// LoadConfig loads, parses and validates configuration from a YAML file.
// Files ending in .json or .jsonc may carry comments and trailing commas.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// #nosec G304 -- path was resolved and checked by WithConfigPath
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(loaderCfg.path)) {
	case ".json", ".jsonc":
		if data, err = hujson.Standardize(data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	return Parse(data)
}

// Parse parses and validates configuration from YAML (or JSON) content
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate checks what the schema cannot express
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.NotifyServices) == 0 {
		return fmt.Errorf("at least one notify service must be configured")
	}

	for i, svc := range c.NotifyServices {
		if _, err := job.ParseImage(svc.Image); err != nil {
			return fmt.Errorf("notifyServices[%d]: %w", i, err)
		}

		for j, action := range svc.Actions {
			if err := c.validateAction(action, fmt.Sprintf("notifyServices[%d].actions[%d]", i, j)); err != nil {
				return err
			}
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if c.Registry != nil && c.Registry.Timeout != "" {
		if _, err := time.ParseDuration(c.Registry.Timeout); err != nil {
			return fmt.Errorf("registry.timeout must be a valid duration (e.g., '10s'): %w", err)
		}
	}

	return nil
}

// validateAction ensures referenced webhooks and SMTP servers exist
func (c *Config) validateAction(action ActionConfig, prefix string) error {
	switch job.ActionType(action.Type) {
	case job.ActionTypeWebhook:
		if _, ok := c.WebHooks[action.Instance]; !ok {
			return fmt.Errorf("%s: webhook %q is referenced but not defined", prefix, action.Instance)
		}
	case job.ActionTypeMail:
		if _, ok := c.SMTPServers[action.Instance]; !ok {
			return fmt.Errorf("%s: smtp server %q is referenced but not defined", prefix, action.Instance)
		}
		if action.Recipient == "" {
			return fmt.Errorf("%s: recipient is required for %s actions", prefix, action.Type)
		}
	default:
		slog.Warn("Unknown action type, notifications will fall back to the log",
			"action", prefix,
			"type", action.Type)
	}
	return nil
}

// GetCheckInterval returns the poll interval, using DefaultCheckInterval if not specified
func (c *Config) GetCheckInterval() time.Duration {
	if c.CheckInterval <= 0 {
		return DefaultCheckInterval
	}
	return time.Duration(c.CheckInterval * float64(time.Minute))
}

// GetStateFile returns the snapshot path, using DefaultStateFile if not specified
func (c *Config) GetStateFile() string {
	if c.StateFile == "" {
		return DefaultStateFile
	}
	return c.StateFile
}

// GetBaseURL returns the registry endpoint, empty for the client default
func (r *RegistryConfig) GetBaseURL() string {
	if r == nil {
		return ""
	}
	return r.BaseURL
}

// GetTimeout returns the request timeout, using DefaultRegistryTimeout if not specified
func (r *RegistryConfig) GetTimeout() time.Duration {
	if r == nil || r.Timeout == "" {
		return DefaultRegistryTimeout
	}
	timeout, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return DefaultRegistryTimeout
	}
	return timeout
}

// GetMaxRetries returns the retry count, using DefaultRegistryMaxRetries if not specified
func (r *RegistryConfig) GetMaxRetries() uint {
	if r == nil || r.MaxRetries == nil {
		return DefaultRegistryMaxRetries
	}
	return *r.MaxRetries
}

// GetRateLimit returns the request rate and burst, a rate of 0 meaning unlimited
func (r *RegistryConfig) GetRateLimit() (perSecond float64, burst int) {
	if r == nil || r.RequestsPerSecond <= 0 {
		return 0, 0
	}
	return r.RequestsPerSecond, max(r.Burst, 1)
}

// Jobs normalizes the notify services into notification jobs.
// The configuration must have been validated.
func (c *Config) Jobs() ([]job.NotificationJob, error) {
	jobs := make([]job.NotificationJob, 0, len(c.NotifyServices))
	for i, svc := range c.NotifyServices {
		image, err := job.ParseImage(svc.Image)
		if err != nil {
			return nil, fmt.Errorf("notifyServices[%d]: %w", i, err)
		}

		actions := make([]job.Action, 0, len(svc.Actions))
		for _, ac := range svc.Actions {
			action, err := c.buildAction(ac)
			if err != nil {
				return nil, fmt.Errorf("notifyServices[%d]: %w", i, err)
			}
			actions = append(actions, action)
		}

		jobs = append(jobs, job.NotificationJob{Image: image, Actions: actions})
	}
	return jobs, nil
}

func (c *Config) buildAction(ac ActionConfig) (job.Action, error) {
	switch job.ActionType(ac.Type) {
	case job.ActionTypeWebhook:
		hook, ok := c.WebHooks[ac.Instance]
		if !ok {
			return nil, fmt.Errorf("webhook %q is not defined", ac.Instance)
		}
		body, err := hook.BodyTemplate()
		if err != nil {
			return nil, fmt.Errorf("webhook %q: %w", ac.Instance, err)
		}
		return job.WebhookAction{
			Instance:     ac.Instance,
			Method:       hook.GetMethod(),
			URL:          hook.ReqURL,
			Headers:      hook.RequestHeaders(),
			BodyTemplate: body,
		}, nil
	case job.ActionTypeMail:
		return job.MailAction{Instance: ac.Instance, Recipient: ac.Recipient}, nil
	default:
		return job.UnknownAction{Kind: ac.Type, Instance: ac.Instance}, nil
	}
}

// GetMethod returns the upper-cased HTTP method, using DefaultWebhookMethod if not specified
func (w WebHookConfig) GetMethod() string {
	if w.HTTPMethod == "" {
		return DefaultWebhookMethod
	}
	return strings.ToUpper(w.HTTPMethod)
}

// RequestHeaders returns the configured headers, with Content-Type set to
// application/json for a structured httpBody unless the configuration names one
func (w WebHookConfig) RequestHeaders() map[string]string {
	if !w.structuredBody() {
		return w.HTTPHeaders
	}
	for name := range w.HTTPHeaders {
		if strings.EqualFold(name, "Content-Type") {
			return w.HTTPHeaders
		}
	}

	headers := make(map[string]string, len(w.HTTPHeaders)+1)
	maps.Copy(headers, w.HTTPHeaders)
	headers["Content-Type"] = "application/json"
	return headers
}

func (w WebHookConfig) structuredBody() bool {
	switch w.HTTPBody.(type) {
	case nil, string:
		return false
	default:
		return true
	}
}

// BodyTemplate returns the body as a template string; structured bodies are JSON encoded
func (w WebHookConfig) BodyTemplate() (string, error) {
	switch body := w.HTTPBody.(type) {
	case nil:
		return "", nil
	case string:
		return body, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("failed to encode httpBody: %w", err)
		}
		return string(data), nil
	}
}

// GetPassword returns the SMTP password of the server named instance using the following priority:
// 1. Read from PasswordFile if specified
// 2. Password from the configuration
// 3. The KeyringService entry of instance when PasswordKeyring is set
// 4. REGISTRY_WATCHER_SMTP_<INSTANCE>_PASSWORD environment variable
//
// An empty password is valid for servers without authentication.
func (s SMTPServerConfig) GetPassword(instance string) (string, error) {
	if s.PasswordFile != "" {
		cleanPath := filepath.Clean(s.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", s.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if s.Password != "" {
		return s.Password, nil
	}

	if s.PasswordKeyring {
		password, err := keyring.Get(KeyringService, instance)
		if err != nil {
			return "", fmt.Errorf("failed to read password of %q from the system keyring: %w", instance, err)
		}
		return password, nil
	}

	return os.Getenv(PasswordEnvVar(instance)), nil
}

// PasswordEnvVar returns the environment variable holding the password of an SMTP server
func PasswordEnvVar(instance string) string {
	name := strings.ToUpper(instance)
	name = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	return fmt.Sprintf("%s_SMTP_%s_PASSWORD", EnvPrefix, name)
}
