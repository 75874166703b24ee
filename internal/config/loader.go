package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), true); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.validate(true); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadLocal reads configuration for commands that never call the
// remote API: credentials are optional, everything else is loaded and
// validated as usual.
func LoadLocal() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), false); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.validate(false); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from environment
// variables. requireEnv enforces required tags; LoadLocal turns it off.
func loadStruct(v reflect.Value, requireEnv bool) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, requireEnv); err != nil {
				return err
			}
			continue
		}

		// Get tags
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		// Apply default if not set
		if value == "" {
			if required && requireEnv {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		// Set the field value
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	return c.validate(true)
}

// validate collects all failures. requireAPI demands credentials;
// syntax of whatever is set is always checked.
func (c *Config) validate(requireAPI bool) error {
	var errs []string

	// API validation
	if c.API.BaseURL == "" {
		if requireAPI {
			errs = append(errs, "ELAB_API_URL is required")
		}
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("ELAB_API_URL (%q) must be an absolute http(s) URL", c.API.BaseURL))
	}
	if c.API.Token == "" && requireAPI {
		errs = append(errs, "ELAB_API_TOKEN is required")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "ELAB_API_TIMEOUT must be positive")
	}
	if c.API.RequestsPerSecond <= 0 {
		errs = append(errs, "ELAB_REQUESTS_PER_SECOND must be positive")
	}
	if c.API.Burst <= 0 {
		errs = append(errs, "ELAB_BURST must be positive")
	}
	if c.API.PageLimit <= 0 {
		errs = append(errs, "ELAB_PAGE_LIMIT must be positive")
	}
	if c.API.ExperimentPageLimit <= 0 {
		errs = append(errs, "ELAB_EXPERIMENT_PAGE_LIMIT must be positive")
	}
	if c.API.MinPageLimit <= 0 {
		errs = append(errs, "ELAB_MIN_PAGE_LIMIT must be positive")
	}
	if c.API.MinPageLimit > c.API.PageLimit {
		errs = append(errs, fmt.Sprintf("ELAB_MIN_PAGE_LIMIT (%d) must be <= ELAB_PAGE_LIMIT (%d)",
			c.API.MinPageLimit, c.API.PageLimit))
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, "ELAB_MAX_RETRIES must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Sync validation
	if c.Sync.MaxFileSize <= 0 {
		errs = append(errs, "SYNC_MAX_FILE_SIZE must be positive")
	}
	if c.Sync.MaxConcurrentRuns <= 0 {
		errs = append(errs, "SYNC_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Sync.MaxWaitTime <= 0 {
		errs = append(errs, "SYNC_MAX_WAIT_TIME must be positive")
	}
	if c.Sync.RunTimeout <= 0 {
		errs = append(errs, "SYNC_RUN_TIMEOUT must be positive")
	}
	if c.Sync.FlashErrorLimit < 0 {
		errs = append(errs, "SYNC_FLASH_ERROR_LIMIT must be non-negative")
	}

	// Export validation
	validExportFormats := map[string]bool{"xlsx": true, "csv": true}
	if !validExportFormats[strings.ToLower(c.Export.Format)] {
		errs = append(errs, fmt.Sprintf("EXPORT_FORMAT (%q) must be one of: xlsx, csv", c.Export.Format))
	}

	// Update validation
	if c.Update.Repo != "" && len(strings.Split(c.Update.Repo, "/")) != 2 {
		errs = append(errs, fmt.Sprintf("UPDATE_REPO (%q) must be owner/name", c.Update.Repo))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The API token is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("API: {BaseURL: %q, Token: [MASKED], Timeout: %s, PageLimit: %d}, ",
		c.API.BaseURL, c.API.Timeout, c.API.PageLimit))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Sync: {MaxFileSize: %d, MaxConcurrentRuns: %d}, ",
		c.Sync.MaxFileSize, c.Sync.MaxConcurrentRuns))
	b.WriteString(fmt.Sprintf("Export: {Dir: %q, Format: %q}, ", c.Export.Dir, c.Export.Format))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
