package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	Port        int
	MetricsPort int
	APIKey      string
	LogLevel    string

	EngineCommand     string
	EngineArgs        []string
	EngineEnv         []string
	EngineDir         string
	EngineConfigPath  string
	AutoInitialize    bool
	RequestTimeout    time.Duration
	InitializeTimeout time.Duration

	MaxReqBytes  int64
	MaxRespBytes int64

	RedisAddr      string
	AllowedOrigins []string
	DrainTimeout   time.Duration

	engineArgsRaw     string
	engineEnvRaw      string
	allowedOriginsRaw string
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *Config) BindFlags() {
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	c.Port = port
	mp, _ := strconv.Atoi(getEnv("METRICS_PORT", strconv.Itoa(port)))
	c.MetricsPort = mp
	c.APIKey = getEnv("API_KEY", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.EngineCommand = getEnv("ENGINE_CMD", "")
	c.engineArgsRaw = getEnv("ENGINE_ARGS", "")
	c.engineEnvRaw = getEnv("ENGINE_ENV", "")
	c.EngineDir = getEnv("ENGINE_DIR", "")
	c.EngineConfigPath = getEnv("ENGINE_CONFIG", "")
	c.AutoInitialize = getEnv("AUTO_INITIALIZE", "false") == "true"
	rt, _ := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "60s"))
	c.RequestTimeout = rt
	it, _ := time.ParseDuration(getEnv("INITIALIZE_TIMEOUT", "30s"))
	c.InitializeTimeout = it
	dt, _ := time.ParseDuration(getEnv("DRAIN_TIMEOUT", "10s"))
	c.DrainTimeout = dt
	mrb, _ := strconv.ParseInt(getEnv("MAX_REQ_BYTES", "10485760"), 10, 64)
	c.MaxReqBytes = mrb
	mpb, _ := strconv.ParseInt(getEnv("MAX_RESP_BYTES", "10485760"), 10, 64)
	c.MaxRespBytes = mpb
	c.RedisAddr = getEnv("REDIS_ADDR", "")
	c.allowedOriginsRaw = getEnv("ALLOWED_ORIGINS", "")

	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the gateway API")
	flag.IntVar(&c.MetricsPort, "metrics-port", c.MetricsPort, "Prometheus metrics listen port; defaults to the value of --port")
	flag.StringVar(&c.APIKey, "api-key", c.APIKey, "client API key required for HTTP requests; leave empty to disable auth")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity")
	flag.StringVar(&c.EngineCommand, "engine-cmd", c.EngineCommand, "engine executable to supervise")
	flag.StringVar(&c.engineArgsRaw, "engine-args", c.engineArgsRaw, "space-separated engine arguments")
	flag.StringVar(&c.engineEnvRaw, "engine-env", c.engineEnvRaw, "comma-separated KEY=VALUE entries appended to the engine environment")
	flag.StringVar(&c.EngineDir, "engine-dir", c.EngineDir, "working directory for the engine process")
	flag.StringVar(&c.EngineConfigPath, "engine-config", c.EngineConfigPath, "YAML engine manifest; overrides the engine-* flags")
	flag.BoolVar(&c.AutoInitialize, "auto-initialize", c.AutoInitialize, "run the MCP initialize handshake before accepting calls")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "maximum duration to wait for an engine response")
	flag.DurationVar(&c.InitializeTimeout, "initialize-timeout", c.InitializeTimeout, "maximum duration for the initialize handshake")
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "grace period for in-flight requests on shutdown")
	flag.Int64Var(&c.MaxReqBytes, "max-req-bytes", c.MaxReqBytes, "maximum accepted request body size")
	flag.Int64Var(&c.MaxRespBytes, "max-resp-bytes", c.MaxRespBytes, "maximum engine response size returned to callers")
	flag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "publish gateway state to this Redis instance; leave empty to disable")
	flag.StringVar(&c.allowedOriginsRaw, "allowed-origins", c.allowedOriginsRaw, "comma-separated CORS origins")
}

// Finalize resolves raw flag values and, when set, overlays the YAML
// engine manifest. Must run after flag.Parse().
func (c *Config) Finalize() error {
	c.EngineArgs = splitFields(c.engineArgsRaw, " ")
	c.EngineEnv = splitFields(c.engineEnvRaw, ",")
	c.AllowedOrigins = splitFields(c.allowedOriginsRaw, ",")
	if c.EngineConfigPath == "" {
		return nil
	}
	m, err := LoadEngineManifest(c.EngineConfigPath)
	if err != nil {
		return err
	}
	m.apply(c)
	return nil
}

func splitFields(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
