package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaRetryMax int
	KafkaWriteMS  int

	FactoryCoreURL        string
	FactoryLookupMS       int
	SpatialMatchMS        int
	SpatialMatchRetryMax  int
	DetectMaxDistance     float64
	CameraCacheTTLSeconds int
	StreamBufferSize      int

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// Load reads configuration from an optional JSON file (CONFIG_PATH) and the
// environment, environment winning. Invalid values are reported as Problems
// and replaced with defaults so the service can still come up far enough to
// expose /readyz.
func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	cfg := Config{
		Env:                   strings.TrimSpace(os.Getenv("ENV")),
		ServiceName:           serviceNameDefault,
		HTTPPort:              httpPortDefault,
		LogLevel:              "info",
		ConfigPath:            strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS:      30000,
		DBMaxConns:            10,
		DBMinConns:            1,
		DBConnMaxIdleSec:      300,
		DBConnMaxLifeSec:      1800,
		KafkaRetryMax:         5,
		KafkaWriteMS:          5000,
		FactoryLookupMS:       5000,
		SpatialMatchMS:        5000,
		SpatialMatchRetryMax:  1,
		DetectMaxDistance:     50,
		CameraCacheTTLSeconds: 30,
		StreamBufferSize:      16,
		InfluxTimeoutMS:       5000,
		OtelInsecure:          true,
		OtelSampleRatio:       1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := cfg.Env != ""

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath); ok {
		problems = append(problems, fileProblems...)
		if v, ok := fileData["ENV"]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.Env = strings.TrimSpace(s)
				envProvided = true
			}
		}
		applyMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be 0..DB_MAX_CONNS"})
		cfg.DBMinConns = 1
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.FactoryLookupMS <= 0 {
		problems = append(problems, Problem{Field: "FACTORY_LOOKUP_TIMEOUT_MS", Message: "FACTORY_LOOKUP_TIMEOUT_MS must be > 0"})
		cfg.FactoryLookupMS = 5000
	}
	if cfg.SpatialMatchMS <= 0 {
		problems = append(problems, Problem{Field: "SPATIAL_MATCH_TIMEOUT_MS", Message: "SPATIAL_MATCH_TIMEOUT_MS must be > 0"})
		cfg.SpatialMatchMS = 5000
	}
	if cfg.SpatialMatchRetryMax < 0 {
		problems = append(problems, Problem{Field: "SPATIAL_MATCH_RETRY_MAX", Message: "SPATIAL_MATCH_RETRY_MAX must be >= 0"})
		cfg.SpatialMatchRetryMax = 1
	}
	if cfg.DetectMaxDistance <= 0 {
		problems = append(problems, Problem{Field: "DETECT_MAX_DISTANCE", Message: "DETECT_MAX_DISTANCE must be > 0"})
		cfg.DetectMaxDistance = 50
	}
	if cfg.CameraCacheTTLSeconds < 0 {
		problems = append(problems, Problem{Field: "CAMERA_CACHE_TTL_SECONDS", Message: "CAMERA_CACHE_TTL_SECONDS must be >= 0"})
		cfg.CameraCacheTTLSeconds = 30
	}
	if cfg.StreamBufferSize <= 0 {
		problems = append(problems, Problem{Field: "STREAM_BUFFER_SIZE", Message: "STREAM_BUFFER_SIZE must be > 0"})
		cfg.StreamBufferSize = 16
	}
	if cfg.RateLimitRPS < 0 {
		problems = append(problems, Problem{Field: "RATE_LIMIT_RPS", Message: "RATE_LIMIT_RPS must be >= 0"})
		cfg.RateLimitRPS = 0
	}
	if cfg.RateLimitBurst < 0 {
		problems = append(problems, Problem{Field: "RATE_LIMIT_BURST", Message: "RATE_LIMIT_BURST must be >= 0"})
		cfg.RateLimitBurst = 0
	}
	if cfg.InfluxTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be > 0"})
		cfg.InfluxTimeoutMS = 5000
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func loadConfigFile(path string) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

type setter struct {
	key string
	set func(string) error
}

func (c *Config) setters() []setter {
	return []setter{
		{"SERVICE_NAME", setString(&c.ServiceName)},
		{"LOG_LEVEL", setString(&c.LogLevel)},
		{"HTTP_PORT", setInt(&c.HTTPPort)},
		{"REQUEST_TIMEOUT_MS", setInt(&c.RequestTimeoutMS)},
		{"DATABASE_URL", setString(&c.DatabaseURL)},
		{"DB_MAX_CONNS", setInt(&c.DBMaxConns)},
		{"DB_MIN_CONNS", setInt(&c.DBMinConns)},
		{"DB_CONN_MAX_IDLE_SECONDS", setInt(&c.DBConnMaxIdleSec)},
		{"DB_CONN_MAX_LIFETIME_SECONDS", setInt(&c.DBConnMaxLifeSec)},
		{"REDIS_ADDR", setString(&c.RedisAddr)},
		{"REDIS_PASSWORD", setRawString(&c.RedisPassword)},
		{"REDIS_DB", setInt(&c.RedisDB)},
		{"KAFKA_BROKERS", setCSV(&c.KafkaBrokers)},
		{"KAFKA_CLIENT_ID", setString(&c.KafkaClientID)},
		{"KAFKA_RETRY_MAX", setInt(&c.KafkaRetryMax)},
		{"KAFKA_WRITE_TIMEOUT_MS", setInt(&c.KafkaWriteMS)},
		{"FACTORY_CORE_URL", setString(&c.FactoryCoreURL)},
		{"FACTORY_LOOKUP_TIMEOUT_MS", setInt(&c.FactoryLookupMS)},
		{"SPATIAL_MATCH_TIMEOUT_MS", setInt(&c.SpatialMatchMS)},
		{"SPATIAL_MATCH_RETRY_MAX", setInt(&c.SpatialMatchRetryMax)},
		{"DETECT_MAX_DISTANCE", setFloat(&c.DetectMaxDistance)},
		{"CAMERA_CACHE_TTL_SECONDS", setInt(&c.CameraCacheTTLSeconds)},
		{"STREAM_BUFFER_SIZE", setInt(&c.StreamBufferSize)},
		{"CORS_ALLOWED_ORIGINS", setCSV(&c.CORSAllowedOrigins)},
		{"RATE_LIMIT_RPS", setFloat(&c.RateLimitRPS)},
		{"RATE_LIMIT_BURST", setInt(&c.RateLimitBurst)},
		{"INFLUX_URL", setString(&c.InfluxURL)},
		{"INFLUX_TOKEN", setRawString(&c.InfluxToken)},
		{"INFLUX_ORG", setString(&c.InfluxOrg)},
		{"INFLUX_BUCKET", setString(&c.InfluxBucket)},
		{"INFLUX_TIMEOUT_MS", setInt(&c.InfluxTimeoutMS)},
		{"OTEL_ENABLED", setBool(&c.OtelEnabled)},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", setString(&c.OtelEndpoint)},
		{"OTEL_EXPORTER_OTLP_INSECURE", setBool(&c.OtelInsecure)},
		{"OTEL_SAMPLE_RATIO", setFloat(&c.OtelSampleRatio)},
	}
}

func applyEnv(cfg *Config, problems *[]Problem) {
	for _, s := range cfg.setters() {
		raw := os.Getenv(s.key)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if err := s.set(raw); err != nil {
			*problems = append(*problems, Problem{Field: s.key, Message: s.key + " " + err.Error()})
		}
	}
	// PORT is honored as a fallback for platforms that only set PORT.
	if strings.TrimSpace(os.Getenv("HTTP_PORT")) == "" {
		if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
			if p, err := strconv.Atoi(raw); err == nil {
				cfg.HTTPPort = p
			} else {
				*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "PORT must be an integer"})
			}
		}
	}
}

func applyMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	setters := cfg.setters()
	byKey := make(map[string]setter, len(setters))
	for _, s := range setters {
		byKey[s.key] = s
	}
	for k, v := range raw {
		s, ok := byKey[strings.ToUpper(strings.TrimSpace(k))]
		if !ok {
			continue
		}
		if err := s.set(stringify(v)); err != nil {
			*problems = append(*problems, Problem{Field: s.key, Message: s.key + " " + err.Error()})
		}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func setString(dst *string) func(string) error {
	return func(raw string) error {
		*dst = strings.TrimSpace(raw)
		return nil
	}
}

// setRawString keeps surrounding whitespace (passwords, tokens).
func setRawString(dst *string) func(string) error {
	return func(raw string) error {
		*dst = raw
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(raw string) error {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return errors.New("must be an integer")
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(raw string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return errors.New("must be a number")
		}
		*dst = f
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(raw string) error {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes", "y":
			*dst = true
		case "false", "0", "no", "n":
			*dst = false
		default:
			return errors.New("must be a boolean")
		}
		return nil
	}
}

func setCSV(dst *[]string) func(string) error {
	return func(raw string) error {
		*dst = parseCSV(raw)
		return nil
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
