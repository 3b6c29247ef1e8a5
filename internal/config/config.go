package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "LINKPOCKET_"

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Guest store
	LocalStore string // "file" | "sqlite" | "memory"
	DataDir    string // directory holding the guest blobs or database

	// Redis (empty RedisAddr disables sign-in)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	KeyPrefix             string        // root of every account key

	// Enrichment
	EnrichEndpoint string        // oEmbed endpoint for video links
	EnrichTimeout  time.Duration // per-lookup timeout
	EnrichMaxBody  int64         // max bytes read from a page

	DefaultFolderNames [2]string // names of the folders provisioned into empty accounts

	AllowedCIDRS    []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy      bool     // true => trust X-Forwarded-For headers
	CreateRateLimit int      // link creations per minute per client IP (0 = unlimited)
}

// Load reads LINKPOCKET_* environment variables on top of the optional YAML
// file named by LINKPOCKET_CONFIG_FILE. Environment values win.
func Load() *Config {
	src := source{}
	if path := os.Getenv(envPrefix + "CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			panic(fmt.Sprintf("❌ FATAL: %v", err))
		}
		src.file = file
	}

	cfg := &Config{
		// Server settings
		ListenPort:      src.get("LISTEN_PORT", ":8080"),
		ShutdownTimeout: src.mustDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  src.get("LOG_LEVEL", "info"),
		PrettyLog: src.mustBool("PRETTY_LOG", true),

		// Guest store
		LocalStore: src.get("LOCAL_STORE", "file"),
		DataDir:    src.get("DATA_DIR", "./data"),

		// Redis settings
		RedisAddr:             src.get("REDIS_ADDR", ""),
		RedisUser:             src.get("REDIS_USERNAME", ""),
		RedisPasswordRequired: src.mustBool("REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         src.get("REDIS_PASSWORD", ""),
		RedisDB:               src.getInt("REDIS_DB", 0),
		RedisDT:               src.mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               src.mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               src.mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          src.mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      src.mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         src.getInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   src.mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    src.mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    src.getInt("REDIS_WARN_THRESHOLD", 3),
		KeyPrefix:             src.get("KEY_PREFIX", "linkpocket"),

		// Enrichment
		EnrichEndpoint: src.get("ENRICH_ENDPOINT", "https://noembed.com/embed"),
		EnrichTimeout:  src.mustDuration("ENRICH_TIMEOUT", 8*time.Second),
		EnrichMaxBody:  int64(src.getInt("ENRICH_MAX_BODY", 2<<20)),

		DefaultFolderNames: folderNames(src.slice("DEFAULT_FOLDERS")),

		// Access restrictions
		AllowedCIDRS:    src.slice("ALLOWED_CIDRS"),
		TrustProxy:      src.mustBool("TRUST_PROXY", false),
		CreateRateLimit: src.getInt("CREATE_RATE_LIMIT", 30),
	}

	switch cfg.LocalStore {
	case "file", "sqlite", "memory":
	default:
		panic(fmt.Sprintf("❌ FATAL: %sLOCAL_STORE must be file, sqlite or memory, got %q", envPrefix, cfg.LocalStore))
	}

	// Validate Redis password configuration
	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: LINKPOCKET_REDIS_PASSWORD is required when LINKPOCKET_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// SignInEnabled reports whether a Redis server is configured.
func (c *Config) SignInEnabled() bool {
	return c.RedisAddr != ""
}

// readFile flattens a YAML mapping into the same keys as the environment,
// without the prefix: listen_port, redis_addr, default_folders...
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(k)
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		case map[string]any:
			return nil, fmt.Errorf("config file %s: key %q must be a scalar or a list", path, k)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// source resolves a key from the environment, then the config file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return s.file[key]
}

// helpers
func (s source) get(key, def string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return def
}

func (s source) getInt(key string, def int) int {
	if v := s.lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) mustBool(key string, def bool) bool {
	if v := s.lookup(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func (s source) mustDuration(key string, def time.Duration) time.Duration {
	if v := s.lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func (s source) slice(key string) []string {
	return splitAndTrim(s.lookup(key))
}

// folderNames keeps the defaults unless exactly two names are given.
func folderNames(names []string) [2]string {
	if len(names) != 2 {
		return [2]string{"Folder 1", "Folder 2"}
	}
	return [2]string{names[0], names[1]}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
