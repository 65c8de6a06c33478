package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides cfg from LINKCHECK_* variables.
func ApplyEnv(cfg *Config) error {
	ints := map[string]*int{
		"LINKCHECK_CONCURRENCY":      &cfg.Concurrency,
		"LINKCHECK_MAX_RETRIES":      &cfg.MaxRetries,
		"LINKCHECK_FETCH_CACHE_SIZE": &cfg.FetchCacheSize,
		"LINKCHECK_REDIS_DB":         &cfg.RedisDB,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"LINKCHECK_TIMEOUT":           &cfg.Timeout,
		"LINKCHECK_RETRY_BACKOFF":     &cfg.RetryBackoff,
		"LINKCHECK_RETRY_BACKOFF_MAX": &cfg.RetryBackoffMax,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok, err := EnvFloat("LINKCHECK_RPS"); err != nil {
		return err
	} else if ok {
		cfg.RequestsPerSecond = value
	}
	if value, ok, err := EnvBool("LINKCHECK_FOLLOW_REDIRECTS"); err != nil {
		return err
	} else if ok {
		cfg.FollowRedirects = value
	}

	strs := map[string]*string{
		"LINKCHECK_PROJECT":        &cfg.ProjectName,
		"LINKCHECK_OUTPUT_DIR":     &cfg.OutputDir,
		"LINKCHECK_METRICS_ADDR":   &cfg.MetricsAddr,
		"LINKCHECK_USER_AGENT":     &cfg.UserAgent,
		"LINKCHECK_S3_BUCKET":      &cfg.S3Bucket,
		"LINKCHECK_S3_REGION":      &cfg.S3Region,
		"LINKCHECK_S3_ENDPOINT":    &cfg.S3Endpoint,
		"LINKCHECK_S3_PREFIX":      &cfg.S3Prefix,
		"AWS_ACCESS_KEY_ID":        &cfg.S3AccessKeyID,
		"AWS_SECRET_ACCESS_KEY":    &cfg.S3SecretAccessKey,
		"LINKCHECK_REDIS_ADDR":     &cfg.RedisAddr,
		"LINKCHECK_REDIS_PASSWORD": &cfg.RedisPassword,
		"LINKCHECK_REDIS_QUEUE":    &cfg.RedisQueue,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}
	return nil
}
