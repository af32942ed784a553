package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NATSFIXTURE_INSTANCE_PORT.
const EnvPrefix = "NATSFIXTURE_"

// Config is the root configuration of the natsfixture command.
// Values come from defaults, then the YAML file, then NATSFIXTURE_* variables.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Logging  LoggingConfig  `yaml:"logging"`
	History  HistoryConfig  `yaml:"history"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
}

// InstanceConfig describes the servers to launch.
type InstanceConfig struct {
	// Name is the instance name. Empty falls back to NATS_LOG_NAME.
	Name string `yaml:"name"`

	// Count is how many instances "run" starts. Each gets its own port.
	Count int `yaml:"count"`

	// Port is the client port. Zero or less picks a free port above 4222.
	Port int `yaml:"port"`

	Version     string `yaml:"version"`
	DownloadURL string `yaml:"download_url"`
	BinaryPath  string `yaml:"binary_path"`

	// TempDir holds PID files and downloaded binaries. Defaults to os.TempDir().
	TempDir string `yaml:"tmp_dir"`

	// StartTimeoutMS bounds the wait for the client port. Zero defers to
	// NATS_TIMEOUT_MS.
	StartTimeoutMS int `yaml:"start_timeout_ms"`

	// StopTimeoutMS bounds the wait for the port to be released. Zero
	// defers to NATS_TIMEOUT_MS.
	StopTimeoutMS int `yaml:"stop_timeout_ms"`

	// Args are appended verbatim to the server command line.
	Args []string `yaml:"args"`

	// Options are server options applied at FILE precedence, keyed by
	// option name (PORT, JETSTREAM, ...).
	Options map[string]string `yaml:"options"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HistoryConfig controls the SQLite launch history.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker settings for lifecycle notifications.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB settings for lifecycle time series.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// APIConfig controls the HTTP status API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// JWTSecret signs bearer tokens for the start/stop routes. Empty leaves
	// those routes unauthenticated.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of issued tokens in minutes.
	TokenTTL int `yaml:"token_ttl"`

	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// WebSocket keepalive settings in seconds.
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`
}

// APITimeoutConfig contains HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path skips the file and uses defaults.
//
// Environment variables follow the pattern NATSFIXTURE_SECTION_KEY,
// e.g. NATSFIXTURE_INSTANCE_PORT or NATSFIXTURE_MQTT_HOST.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults for every section.
func Default() *Config {
	return &Config{
		Instance: InstanceConfig{
			Count: 1,
			Port:  -1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		History: HistoryConfig{
			Path:        "./data/natsfixture.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "natsfixture",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "natsfixture",
			Bucket:        "natsfixture",
			BatchSize:     100,
			FlushInterval: 1,
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
			Path:   "/metrics",
		},
		API: APIConfig{
			Listen:   "127.0.0.1:9465",
			TokenTTL: 60,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			PingInterval: 30,
			PongTimeout:  10,
		},
	}
}

type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"INSTANCE_NAME", stringVar(func(c *Config) *string { return &c.Instance.Name })},
	{"INSTANCE_COUNT", intVar(func(c *Config) *int { return &c.Instance.Count })},
	{"INSTANCE_PORT", intVar(func(c *Config) *int { return &c.Instance.Port })},
	{"INSTANCE_VERSION", stringVar(func(c *Config) *string { return &c.Instance.Version })},
	{"INSTANCE_DOWNLOAD_URL", stringVar(func(c *Config) *string { return &c.Instance.DownloadURL })},
	{"INSTANCE_BINARY_PATH", stringVar(func(c *Config) *string { return &c.Instance.BinaryPath })},
	{"INSTANCE_TMP_DIR", stringVar(func(c *Config) *string { return &c.Instance.TempDir })},
	{"INSTANCE_START_TIMEOUT_MS", intVar(func(c *Config) *int { return &c.Instance.StartTimeoutMS })},
	{"INSTANCE_STOP_TIMEOUT_MS", intVar(func(c *Config) *int { return &c.Instance.StopTimeoutMS })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Logging.Format })},
	{"HISTORY_ENABLED", boolVar(func(c *Config) *bool { return &c.History.Enabled })},
	{"HISTORY_PATH", stringVar(func(c *Config) *string { return &c.History.Path })},
	{"MQTT_ENABLED", boolVar(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"MQTT_HOST", stringVar(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"MQTT_PORT", intVar(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"MQTT_USERNAME", stringVar(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"MQTT_PASSWORD", stringVar(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"INFLUXDB_ENABLED", boolVar(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"INFLUXDB_URL", stringVar(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"INFLUXDB_TOKEN", stringVar(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"METRICS_LISTEN", stringVar(func(c *Config) *string { return &c.Metrics.Listen })},
	{"API_ENABLED", boolVar(func(c *Config) *bool { return &c.API.Enabled })},
	{"API_LISTEN", stringVar(func(c *Config) *string { return &c.API.Listen })},
	{"API_JWT_SECRET", stringVar(func(c *Config) *string { return &c.API.JWTSecret })},
}

// applyEnvOverrides applies NATSFIXTURE_* variables. Empty values are ignored.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("environment variable %s%s: %w", EnvPrefix, b.name, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Instance.Count < 1 {
		errs = append(errs, "instance.count must be at least 1")
	}
	if c.Instance.Port > 65535 {
		errs = append(errs, "instance.port must be at most 65535")
	}
	if c.Instance.Count > 1 && c.Instance.Port > 0 {
		errs = append(errs, "instance.port must be unset when instance.count is greater than 1")
	}
	if c.Instance.StartTimeoutMS < 0 || c.Instance.StopTimeoutMS < 0 {
		errs = append(errs, "instance timeouts must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if c.API.Enabled {
		if c.API.Listen == "" {
			errs = append(errs, "api.listen is required when the api is enabled")
		}
		if c.API.PingInterval <= 0 || c.API.PongTimeout <= 0 {
			errs = append(errs, "api.ping_interval and api.pong_timeout must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StartTimeout returns the start wait as a Duration. Zero means unset.
func (c *InstanceConfig) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutMS) * time.Millisecond
}

// StopTimeout returns the stop wait as a Duration.
func (c *InstanceConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// ServerOptions returns the EXPLICIT option layer derived from the typed
// instance fields. Unset fields are omitted.
func (c *InstanceConfig) ServerOptions() map[string]string {
	opts := make(map[string]string)
	if c.Port != 0 {
		opts["PORT"] = strconv.Itoa(c.Port)
	}
	if c.Version != "" {
		opts["NATS_VERSION"] = c.Version
	}
	if c.DownloadURL != "" {
		opts["NATS_DOWNLOAD_URL"] = c.DownloadURL
	}
	if c.BinaryPath != "" {
		opts["NATS_BINARY_PATH"] = c.BinaryPath
	}
	return opts
}
