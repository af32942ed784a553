package options

import "strings"

// WrapperPrefix marks keys that configure the fixture itself rather than
// the server. Keys with this prefix never appear on the command line.
const WrapperPrefix = "NATS_"

// Kind is the declared value type of a key.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindPath
	KindURL
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindPath:
		return "path"
	case KindURL:
		return "url"
	default:
		return "string"
	}
}

// Key describes one configuration key.
//
// Keys form a closed set: every Key value the package hands out comes from
// the registry below. Key is comparable and may be used as a map key.
type Key struct {
	// Name is the unique identifier, upper-case with underscores.
	Name string

	// Flag is the command-line form, e.g. "--port". Empty for wrapper keys.
	Flag string

	// Kind is the declared value type.
	Kind Kind

	// FlagOnly keys render as a bare flag when their value is "true"
	// and are omitted otherwise.
	FlagOnly bool

	// Default is the DEFAULT-layer value. Empty means no default.
	Default string

	// CaseSensitive values keep their case when rendered.
	CaseSensitive bool

	// Description is a one-line human-readable summary.
	Description string
}

// IsWrapper reports whether the key configures the fixture rather than the server.
func (k Key) IsWrapper() bool {
	return strings.HasPrefix(k.Name, WrapperPrefix)
}

// Serializable reports whether the key is rendered on the command line.
func (k Key) Serializable() bool {
	return k.Flag != "" && !k.IsWrapper()
}

func (k Key) String() string {
	return k.Name
}

// Server options.
var (
	Net             = Key{Name: "NET", Flag: "--net", Kind: KindString, Default: "0.0.0.0", Description: "Bind to host address"}
	Port            = Key{Name: "PORT", Flag: "--port", Kind: KindInt, Default: "4222", Description: "Use port for clients"}
	ServerName      = Key{Name: "SERVER_NAME", Flag: "--server_name", Kind: KindString, Description: "Server name"}
	PID             = Key{Name: "PID", Flag: "--pid", Kind: KindPath, Description: "File to store PID"}
	HTTPPort        = Key{Name: "HTTP_PORT", Flag: "--http_port", Kind: KindInt, Description: "Use port for http monitoring"}
	HTTPSPort       = Key{Name: "HTTPS_PORT", Flag: "--https_port", Kind: KindInt, Description: "Use port for https monitoring"}
	Config          = Key{Name: "CONFIG", Flag: "--config", Kind: KindPath, Description: "Configuration file"}
	TestConfig      = Key{Name: "TEST_CONFIG", Flag: "-t", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Test configuration and exit"}
	Signal          = Key{Name: "SIGNAL", Flag: "--signal", Kind: KindString, Description: "Send signal to server process (stop=<pid>, quit, reload, ...)"}
	ClientAdvertise = Key{Name: "CLIENT_ADVERTISE", Flag: "--client_advertise", Kind: KindString, Description: "Client URL to advertise to other servers"}
	PortsFileDir    = Key{Name: "PORTS_FILE_DIR", Flag: "--ports_file_dir", Kind: KindPath, Description: "Directory for the <executable>_<pid>.ports file"}
)

// Logging options.
var (
	Log             = Key{Name: "LOG", Flag: "--log", Kind: KindPath, Description: "File to redirect log output"}
	LogTime         = Key{Name: "LOGTIME", Flag: "--logtime", Kind: KindBool, Description: "Timestamp log entries"}
	Syslog          = Key{Name: "SYSLOG", Flag: "--syslog", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Log to syslog or windows event log"}
	RemoteSyslog    = Key{Name: "REMOTE_SYSLOG", Flag: "--remote_syslog", Kind: KindString, Description: "Syslog server address"}
	Debug           = Key{Name: "DEBUG", Flag: "--debug", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Enable debugging output"}
	Trace           = Key{Name: "TRACE", Flag: "--trace", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Trace the raw protocol"}
	VerboseTrace    = Key{Name: "VV", Flag: "-VV", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Verbose trace including the system account"}
	DebugTrace      = Key{Name: "DV", Flag: "-DV", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Debug and trace"}
	DebugVerbose    = Key{Name: "DVV", Flag: "-DVV", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Debug and verbose trace"}
	LogSizeLimit    = Key{Name: "LOG_SIZE_LIMIT", Flag: "--log_size_limit", Kind: KindInt, Description: "Logfile size limit"}
	MaxTracedMsgLen = Key{Name: "MAX_TRACED_MSG_LEN", Flag: "--max_traced_msg_len", Kind: KindInt, Description: "Maximum printable length for traced messages"}
)

// JetStream and authorization options.
var (
	JetStream = Key{Name: "JETSTREAM", Flag: "--jetstream", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Enable JetStream"}
	StoreDir  = Key{Name: "STORE_DIR", Flag: "--store_dir", Kind: KindPath, Description: "Set the storage directory"}
	User      = Key{Name: "USER", Flag: "--user", Kind: KindString, CaseSensitive: true, Description: "User required for connections"}
	Pass      = Key{Name: "PASS", Flag: "--pass", Kind: KindString, CaseSensitive: true, Description: "Password required for connections"}
	Auth      = Key{Name: "AUTH", Flag: "--auth", Kind: KindString, CaseSensitive: true, Description: "Authorization token required for connections"}
)

// TLS options.
var (
	TLS       = Key{Name: "TLS", Flag: "--tls", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Enable TLS without client verification"}
	TLSCert   = Key{Name: "TLS_CERT", Flag: "--tlscert", Kind: KindPath, Description: "Server certificate file"}
	TLSKey    = Key{Name: "TLS_KEY", Flag: "--tlskey", Kind: KindPath, Description: "Private key for server certificate"}
	TLSVerify = Key{Name: "TLS_VERIFY", Flag: "--tlsverify", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Enable TLS and verify client certificates"}
	TLSCACert = Key{Name: "TLS_CA_CERT", Flag: "--tlscacert", Kind: KindPath, Description: "Client certificate CA for verification"}
)

// Cluster, profiling and help options.
var (
	Routes           = Key{Name: "ROUTES", Flag: "--routes", Kind: KindString, Description: "Routes to solicit and connect"}
	Cluster          = Key{Name: "CLUSTER", Flag: "--cluster", Kind: KindURL, Description: "Cluster URL for solicited routes"}
	ClusterName      = Key{Name: "CLUSTER_NAME", Flag: "--cluster_name", Kind: KindString, Description: "Cluster name"}
	NoAdvertise      = Key{Name: "NO_ADVERTISE", Flag: "--no_advertise", Kind: KindBool, Description: "Do not advertise known cluster information to clients"}
	ClusterAdvertise = Key{Name: "CLUSTER_ADVERTISE", Flag: "--cluster_advertise", Kind: KindString, Description: "Cluster URL to advertise to other servers"}
	ConnectRetries   = Key{Name: "CONNECT_RETRIES", Flag: "--connect_retries", Kind: KindInt, Description: "Connect retries for implicit routes"}
	ClusterListen    = Key{Name: "CLUSTER_LISTEN", Flag: "--cluster_listen", Kind: KindURL, Description: "Cluster URL members can solicit routes from"}
	Profile          = Key{Name: "PROFILE", Flag: "--profile", Kind: KindInt, Description: "Profiling HTTP port"}
	Help             = Key{Name: "HELP", Flag: "--help", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Show the server help message"}
	HelpTLS          = Key{Name: "HELP_TLS", Flag: "--help_tls", Kind: KindBool, FlagOnly: true, Default: "false", Description: "Show the server TLS help"}
)

// Wrapper keys.
var (
	Autostart    = Key{Name: "NATS_AUTOSTART", Kind: KindBool, Default: "true", Description: "Start the server as soon as it is launched"}
	LogLevel     = Key{Name: "NATS_LOG_LEVEL", Kind: KindString, Description: "Fixture log level (debug, info, warn, error)"}
	TimeoutMS    = Key{Name: "NATS_TIMEOUT_MS", Kind: KindInt, Default: "10000", Description: "Start and stop timeout in milliseconds"}
	System       = Key{Name: "NATS_SYSTEM", Kind: KindString, Description: "Platform suffix for the binary, e.g. linux-amd64"}
	LogName      = Key{Name: "NATS_LOG_NAME", Kind: KindString, Default: "nats", Description: "Instance name used for logs and temp paths"}
	Version      = Key{Name: "NATS_VERSION", Kind: KindString, Default: "v2.10.2", Description: "Server version to download"}
	DownloadURL  = Key{Name: "NATS_DOWNLOAD_URL", Kind: KindURL, Default: "https://github.com/nats-io/nats-server/releases/download/%NATS_VERSION%/nats-server-%NATS_VERSION%-%NATS_SYSTEM%.zip", CaseSensitive: true, Description: "Download URL template for the server archive"}
	BinaryPath   = Key{Name: "NATS_BINARY_PATH", Kind: KindPath, Description: "Target path of the server binary"}
	PropertyFile = Key{Name: "NATS_PROPERTY_FILE", Kind: KindPath, Description: "Property file with KEY=value lines"}
	Args         = Key{Name: "NATS_ARGS", Kind: KindString, CaseSensitive: true, Description: "Raw custom arguments separated by &&"}
)

// ArgsSeparator splits the raw NATS_ARGS value into individual arguments.
const ArgsSeparator = "&&"

// registry is the closed key table in command-line render order.
var registry = []Key{
	Net, Port, ServerName, PID, HTTPPort, HTTPSPort, Config, TestConfig, Signal, ClientAdvertise, PortsFileDir,
	Log, LogTime, Syslog, RemoteSyslog, Debug, Trace, VerboseTrace, DebugTrace, DebugVerbose, LogSizeLimit, MaxTracedMsgLen,
	JetStream, StoreDir, User, Pass, Auth,
	TLS, TLSCert, TLSKey, TLSVerify, TLSCACert,
	Routes, Cluster, ClusterName, NoAdvertise, ClusterAdvertise, ConnectRetries, ClusterListen, Profile, Help, HelpTLS,
	Autostart, LogLevel, TimeoutMS, System, LogName, Version, DownloadURL, BinaryPath, PropertyFile, Args,
}

var byName = func() map[string]Key {
	m := make(map[string]Key, len(registry))
	for _, k := range registry {
		m[k.Name] = k
	}
	return m
}()

// Keys returns every registered key in render order.
func Keys() []Key {
	out := make([]Key, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a key by name. Names are normalised first, so "server-name",
// " server_name " and "SERVER_NAME" all resolve to ServerName.
func Lookup(name string) (Key, bool) {
	k, ok := byName[NormalizeName(name)]
	return k, ok
}

// NormalizeName trims, upper-cases and replaces dashes with underscores.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_")
}

// EnvName returns the environment variable that feeds the key.
// Wrapper keys already carry the prefix and are used as-is.
func EnvName(k Key) string {
	if k.IsWrapper() {
		return k.Name
	}
	return WrapperPrefix + k.Name
}
