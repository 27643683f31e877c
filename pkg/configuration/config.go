package configuration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultFile is used when STUCK_CONFIG is not set.
const DefaultFile = "stuck.cfg"

// localFile overrides values of the main file when it sits next to it.
const localFile = "stuck.local.cfg"

// sectionOrder fixes the layout of a saved file.
var sectionOrder = []string{"Interpreter", "Server", "WebSocket", "Security", "Storage", "JWT", "TLS", "Debug"}

// Config holds INI-style settings grouped by section.
type Config struct {
	settings map[string]map[string]string
	filePath string
	mu       sync.RWMutex
}

var (
	globalConfig *Config
	once         sync.Once
)

// Path returns the configuration file to load: $STUCK_CONFIG or stuck.cfg.
func Path() string {
	if p := os.Getenv("STUCK_CONFIG"); p != "" {
		return p
	}
	return DefaultFile
}

// Initialize loads the global configuration from configPath. A missing file
// leaves the built-in defaults in place; nothing is written.
func Initialize(configPath string) error {
	var err error
	once.Do(func() {
		var cfg *Config
		cfg, err = Load(configPath)
		if err != nil {
			cfg = defaults(configPath)
		}
		setGlobal(cfg)
	})
	return err
}

func defaults(path string) *Config {
	cfg := &Config{
		settings: make(map[string]map[string]string),
		filePath: path,
	}
	cfg.createDefaultConfig()
	return cfg
}

// Load reads configPath and the stuck.local.cfg next to it on top of the
// defaults.
func Load(configPath string) (*Config, error) {
	cfg := defaults(configPath)

	if err := cfg.mergeFile(configPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", configPath, err)
	}

	local := filepath.Join(filepath.Dir(configPath), localFile)
	if err := cfg.mergeFile(local); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", local, err)
	}
	return cfg, nil
}

func setGlobal(cfg *Config) {
	globalConfig = cfg
}

// current returns the global configuration, creating a defaults-only one on
// first use so that setters work before Initialize.
func current() *Config {
	once.Do(func() {
		setGlobal(defaults(Path()))
	})
	return globalConfig
}

func (c *Config) mergeFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return parseInto(c.settings, file)
}

// parseInto reads `[Section]` headers and `key = value` lines. Blank lines
// and lines starting with ; or # are skipped. Later values win.
func parseInto(settings map[string]map[string]string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	section := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if settings[section] == nil {
				settings[section] = make(map[string]string)
			}
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found || section == "" {
			continue
		}
		settings[section][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return scanner.Err()
}

// createDefaultConfig fills in every key the program reads.
func (c *Config) createDefaultConfig() {
	c.settings["Interpreter"] = map[string]string{
		"strict_blocks":  "false",
		"max_call_depth": "0",
		"max_steps":      "0",
	}

	c.settings["Server"] = map[string]string{
		"listen_address":      ":8080",
		"run_timeout":         "10s",
		"interactive_timeout": "5m",
		"max_source_bytes":    "65536",
		"max_output_bytes":    "1048576",
		"session_idle":        "30m",
	}

	c.settings["WebSocket"] = map[string]string{
		"allowed_origins":     "",
		"pong_timeout":        "60s",
		"write_wait_timeout":  "10s",
		"max_message_size_kb": "64",
		"send_buffer":         "256",
		"max_clients":         "100",
	}

	c.settings["Security"] = map[string]string{
		"max_sessions_per_ip":   "5",
		"max_sessions_per_user": "3",
		"min_username_length":   "3",
		"max_username_length":   "20",
		"min_password_length":   "6",
		"max_password_length":   "100",
		"rate_limit_messages":   "120",
		"rate_limit_connects":   "30",
	}

	c.settings["Storage"] = map[string]string{
		"database_path":      "stuck.db",
		"password_hash_cost": "10",
		"max_runs_listed":    "50",
	}

	c.settings["JWT"] = map[string]string{
		"secret_key":             "",
		"token_expiration_hours": "24",
	}

	c.settings["TLS"] = map[string]string{
		"enable_tls":           "false",
		"enable_letsencrypt":   "false",
		"domain":               "",
		"letsencrypt_email":    "",
		"cert_cache_dir":       "./certs",
		"cert_file":            "./certs/server.crt",
		"key_file":             "./certs/server.key",
		"https_address":        ":8443",
		"force_https_redirect": "false",
	}

	c.settings["Debug"] = map[string]string{
		"enable_debug_logging": "false",
		"log_level":            "INFO",
		"log_file":             "stuck.log",
		"max_log_size_mb":      "10",
		"log_rotation_count":   "3",
		"log_interpreter":      "false",
		"log_terminal":         "true",
		"log_websocket":        "false",
		"log_auth":             "true",
		"log_storage":          "true",
		"log_session":          "true",
		"log_security":         "true",
		"log_config":           "true",
		"log_repl":             "false",
		"log_general":          "true",
	}
}

// saveToFile writes all sections, known ones first, keys sorted.
func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, "; stuck configuration file")
	fmt.Fprintln(w, "; values in stuck.local.cfg override this file")
	fmt.Fprintln(w)

	sections := append([]string(nil), sectionOrder...)
	var extra []string
	for name := range c.settings {
		if !contains(sectionOrder, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	sections = append(sections, extra...)

	for _, section := range sections {
		settings, exists := c.settings[section]
		if !exists {
			continue
		}
		fmt.Fprintf(w, "[%s]\n", section)

		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "%s = %s\n", key, settings[key])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// FilePath returns the file the global configuration was loaded from.
func FilePath() string {
	cfg := current()
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return cfg.filePath
}

// EnsureFile writes the current configuration to its file if the file does
// not exist yet. It reports whether a file was created.
func EnsureFile() (bool, error) {
	path := FilePath()
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := Save(); err != nil {
		return false, err
	}
	return true, nil
}

// GetString returns a value or defaultValue when the key is not set.
func GetString(section, key, defaultValue string) string {
	cfg := current()
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	if sectionMap, exists := cfg.settings[section]; exists {
		if value, exists := sectionMap[key]; exists {
			return value
		}
	}
	return defaultValue
}

// GetInt returns an integer value or defaultValue if unset or malformed.
func GetInt(section, key string, defaultValue int) int {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(str); err == nil {
		return value
	}
	return defaultValue
}

// GetInt64 is GetInt for 64-bit values.
func GetInt64(section, key string, defaultValue int64) int64 {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseInt(str, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

// GetFloat returns a float value or defaultValue if unset or malformed.
func GetFloat(section, key string, defaultValue float64) float64 {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseFloat(str, 64); err == nil {
		return value
	}
	return defaultValue
}

// GetBool returns a boolean value or defaultValue if unset or malformed.
func GetBool(section, key string, defaultValue bool) bool {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(str); err == nil {
		return value
	}
	return defaultValue
}

// GetDuration returns a duration such as "10s" or defaultValue.
func GetDuration(section, key string, defaultValue time.Duration) time.Duration {
	str := GetString(section, key, "")
	if str == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(str); err == nil {
		return value
	}
	return defaultValue
}

// GetList splits a comma separated value, dropping empty items.
func GetList(section, key string) []string {
	var out []string
	for _, item := range strings.Split(GetString(section, key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetSection returns a copy of all key-value pairs of a section.
func GetSection(sectionName string) map[string]string {
	cfg := current()
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := make(map[string]string)
	for key, value := range cfg.settings[sectionName] {
		result[key] = value
	}
	return result
}

// SetString sets a value in memory. Call Save to persist it.
func SetString(section, key, value string) {
	cfg := current()
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if cfg.settings[section] == nil {
		cfg.settings[section] = make(map[string]string)
	}
	cfg.settings[section][key] = value
}

// Save writes the global configuration to its file.
func Save() error {
	cfg := current()
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	return cfg.saveToFile()
}
