// Package config loads keyvox settings from JSON files and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/daikw/keyvox/internal/speech"
)

const (
	// KeysEnvVar holds comma separated API keys registered at startup
	KeysEnvVar = "KEYVOX_API_KEYS"

	fileName = "config.json"
	dirName  = ".keyvox"

	defaultBatchPauseMs   = 500
	defaultClearConfirmMs = 3000
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config is the keyvox configuration file
type Config struct {
	Backend     string   `json:"backend,omitempty"`
	Voice       string   `json:"voice,omitempty"`
	Language    string   `json:"language,omitempty"`
	Speed       float64  `json:"speed,omitempty"`
	Pitch       float64  `json:"pitch,omitempty"`
	Markup      bool     `json:"markup,omitempty"`
	BannedTerms []string `json:"bannedTerms,omitempty"`

	BatchPauseMs   int `json:"batchPauseMs"`
	ClearConfirmMs int `json:"clearConfirmMs"`

	DataDir string   `json:"dataDir,omitempty"`
	APIKeys []string `json:"apiKeys,omitempty"`

	GCP        GCPConfig   `json:"gcp,omitempty"`
	Polly      PollyConfig `json:"polly,omitempty"`
	OpenAI     HTTPConfig  `json:"openai,omitempty"`
	ElevenLabs HTTPConfig  `json:"elevenlabs,omitempty"`

	// Path is the file the configuration was read from, if any
	Path string `json:"-"`
}

// GCPConfig holds Google Cloud Text-to-Speech options
type GCPConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
}

// PollyConfig holds Amazon Polly options
type PollyConfig struct {
	Region string `json:"region,omitempty"`
	Engine string `json:"engine,omitempty"`
}

// HTTPConfig holds options for HTTP based backends
type HTTPConfig struct {
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Backend:        speech.BackendGCP,
		Speed:          1.0,
		BatchPauseMs:   defaultBatchPauseMs,
		ClearConfirmMs: defaultClearConfirmMs,
	}
}

// Loader finds and reads configuration files
type Loader struct {
	projectPath string
	globalPath  string
}

// NewLoader creates a loader for .keyvox/config.json in the project and home directory
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		projectPath: filepath.Join(dirName, fileName),
		globalPath:  filepath.Join(homeDir, dirName, fileName),
	}
}

// Load reads the project config under workDir, falling back to the global
// config, then to the defaults when neither exists.
func (l *Loader) Load(workDir string) (*Config, error) {
	for _, path := range []string{filepath.Join(workDir, l.projectPath), l.globalPath} {
		cfg, err := l.loadFromFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", path).Msg("Loaded config")
		return cfg, nil
	}

	log.Debug().Msg("No config file found, using defaults")
	return Default(), nil
}

// LoadFromPath loads a specific config file
func (l *Loader) LoadFromPath(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}
	return l.loadFromFile(path)
}

// validateConfigPath rejects traversal and anything that is not a config.json
func validateConfigPath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("invalid config path: path traversal not allowed")
	}
	if filepath.Base(filepath.Clean(path)) != fileName {
		return fmt.Errorf("invalid config path: must be a %s file", fileName)
	}
	return nil
}

func (l *Loader) loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Path = path

	checkFilePermissions(path)
	return cfg, nil
}

// expandEnvVars replaces ${VAR} patterns with environment variable values
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Don't log variable names, they may hint at secrets
		log.Debug().Msg("Referenced environment variable not set in config")
		return ""
	})
}

func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		log.Warn().
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Config file may contain API keys but has permissive permissions. Consider: chmod 600")
	}
}

// LoadDotEnv loads variables from .env files that exist. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	log.Debug().Strs("files", existing).Msg("Loaded environment files")
	return nil
}

// Keys returns the API keys from the config file and KEYVOX_API_KEYS,
// trimmed, without blanks or repeats.
func (c *Config) Keys() []string {
	var keys []string
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	for _, k := range c.APIKeys {
		add(k)
	}
	for _, k := range strings.Split(os.Getenv(KeysEnvVar), ",") {
		add(k)
	}
	return keys
}

// BatchPause returns the pause between batch items
func (c *Config) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMs) * time.Millisecond
}

// ClearConfirmWindow returns how long a batch clear stays armed
func (c *Config) ClearConfirmWindow() time.Duration {
	if c.ClearConfirmMs <= 0 {
		return defaultClearConfirmMs * time.Millisecond
	}
	return time.Duration(c.ClearConfirmMs) * time.Millisecond
}

// DataDirOrDefault returns the directory for the key database
func (c *Config) DataDirOrDefault() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(homeDir, dirName)
}

// SpeechOptions returns the backend selection for speech.New
func (c *Config) SpeechOptions() speech.Options {
	return speech.Options{
		Backend:           c.Backend,
		GCPEndpoint:       c.GCP.Endpoint,
		Voice:             c.Voice,
		Language:          c.Language,
		PollyRegion:       c.Polly.Region,
		PollyEngine:       c.Polly.Engine,
		OpenAIBaseURL:     c.OpenAI.BaseURL,
		OpenAIModel:       c.OpenAI.Model,
		ElevenLabsBaseURL: c.ElevenLabs.BaseURL,
		ElevenLabsModel:   c.ElevenLabs.Model,
	}
}

// Validate returns every problem found in the configuration
func (c *Config) Validate() []string {
	var errs []string
	if c == nil {
		return errs
	}

	if c.Backend != "" && !slices.Contains(speech.Backends(), c.Backend) {
		errs = append(errs, fmt.Sprintf("backend '%s' is not supported (use one of: %s)",
			c.Backend, strings.Join(speech.Backends(), ", ")))
	}
	if c.Speed != 0 && (c.Speed < 0.25 || c.Speed > 4.0) {
		errs = append(errs, "speed must be between 0.25 and 4.0")
	}
	if c.Pitch < -20 || c.Pitch > 20 {
		errs = append(errs, "pitch must be between -20.0 and 20.0")
	}
	if c.BatchPauseMs < 0 {
		errs = append(errs, "batchPauseMs must not be negative")
	}
	if c.ClearConfirmMs < 0 {
		errs = append(errs, "clearConfirmMs must not be negative")
	}
	if c.Backend == speech.BackendPolly {
		for i, k := range c.APIKeys {
			if id, secret, ok := strings.Cut(k, ":"); !ok || id == "" || secret == "" {
				errs = append(errs, fmt.Sprintf("apiKeys[%d]: polly keys must be ACCESS_KEY_ID:SECRET_ACCESS_KEY", i))
			}
		}
	}
	return errs
}

// MaskSecrets returns a copy safe for display. Keys only reveal their length.
func (c *Config) MaskSecrets() *Config {
	if c == nil {
		return nil
	}
	masked := *c
	masked.BannedTerms = slices.Clone(c.BannedTerms)
	masked.APIKeys = make([]string, len(c.APIKeys))
	for i, k := range c.APIKeys {
		masked.APIKeys[i] = fmt.Sprintf("[set, %d chars]", len(k))
	}
	return &masked
}

// GenerateExampleConfig returns an example configuration file
func GenerateExampleConfig() string {
	example := Default()
	example.Voice = "en-US-Neural2-C"
	example.Language = "en-US"
	example.BannedTerms = []string{"confidential"}
	example.APIKeys = []string{"${GOOGLE_TTS_API_KEY}"}
	example.Polly = PollyConfig{Region: "us-east-1", Engine: "neural"}
	example.OpenAI = HTTPConfig{Model: "tts-1"}
	example.ElevenLabs = HTTPConfig{Model: "eleven_multilingual_v2"}

	data, _ := json.MarshalIndent(example, "", "  ")
	return string(data)
}
