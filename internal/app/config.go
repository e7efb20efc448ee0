package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores runtime configuration loaded from environment variables and
// an optional YAML file named by EXAMPREP_CONFIG. Environment wins.
type Config struct {
	AppEnv             string
	HTTPAddr           string
	ExamRoot           string
	SessionIdleTimeout time.Duration
	CSRFEnforced       bool
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	LogLevel           string
	LogFile            string
	ShutdownTimeout    time.Duration
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func LoadConfig() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("app_env", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("exam_root", "exams")
	v.SetDefault("session_idle_timeout_seconds", 1800)
	v.SetDefault("csrf_enforced", false)
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("cors_allowed_origins", "http://localhost:3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("shutdown_timeout_seconds", 10)

	if path := strings.TrimSpace(v.GetString("examprep_config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return Config{
		AppEnv:             v.GetString("app_env"),
		HTTPAddr:           v.GetString("http_addr"),
		ExamRoot:           v.GetString("exam_root"),
		SessionIdleTimeout: time.Duration(positiveOr(v.GetInt("session_idle_timeout_seconds"), 1800)) * time.Second,
		CSRFEnforced:       v.GetBool("csrf_enforced"),
		RateLimitPerMin:    positiveOr(v.GetInt("rate_limit_per_minute"), 120),
		CORSAllowedOrigins: stringList(v.Get("cors_allowed_origins")),
		LogLevel:           strings.ToLower(v.GetString("log_level")),
		LogFile:            v.GetString("log_file"),
		ShutdownTimeout:    time.Duration(positiveOr(v.GetInt("shutdown_timeout_seconds"), 10)) * time.Second,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// stringList accepts a comma separated env value or a YAML list.
func stringList(raw any) []string {
	var items []string
	switch t := raw.(type) {
	case string:
		items = strings.Split(t, ",")
	case []string:
		items = t
	case []any:
		for _, it := range t {
			items = append(items, fmt.Sprint(it))
		}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}
