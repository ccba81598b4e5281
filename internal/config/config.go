// Package config loads the converter settings from the config file, the
// environment and command-line flags, in viper's usual precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
	"golang.org/x/text/language"

	"github.com/olakz-ops/export-chat-converter/internal/app"
)

const (
	fileName = "config"
	fileType = "json"

	// keyringUser is the account the API key is stored under.
	keyringUser = "openai_api_key"
)

// Keys, as they appear in config.json.
const (
	KeyAPIKey         = "openai_api_key"
	KeyBaseURL        = "openai_base_url"
	KeyModel          = "transcription.model"
	KeyLanguage       = "transcription.language"
	KeyBatchSize      = "transcription.batch_size"
	KeyTimeout        = "transcription.timeout"
	KeyMediaOmitted   = "media_omitted"
	KeySystemMessages = "cleanup.system_messages"
	KeyRemoveEmpty    = "cleanup.remove_empty"
	KeyPatternsFile   = "cleanup.patterns_file"
	KeyMerge          = "merge"
	KeyLogLevel       = "log.level"
	KeyLogJSON        = "log.json"
)

// ErrNoAPIKey is returned when transcription is requested without a key.
var ErrNoAPIKey = errors.New("no OpenAI API key configured (run 'wachat init' or set OPENAI_API_KEY)")

type Config struct {
	OpenAIAPIKey  string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url"`
	Transcription Transcription `mapstructure:"transcription"`
	MediaOmitted  string        `mapstructure:"media_omitted"`
	Cleanup       Cleanup       `mapstructure:"cleanup"`
	Merge         bool          `mapstructure:"merge"`
	Log           Log           `mapstructure:"log"`

	// APIKeySource tells where the key came from: "config", "keyring" or "".
	APIKeySource string `mapstructure:"-"`
}

type Transcription struct {
	Model     string        `mapstructure:"model"`
	Language  string        `mapstructure:"language"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Cleanup struct {
	SystemMessages bool   `mapstructure:"system_messages"`
	RemoveEmpty    bool   `mapstructure:"remove_empty"`
	PatternsFile   string `mapstructure:"patterns_file"`
}

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Dir returns the config directory, $XDG_CONFIG_HOME/wachat or
// ~/.config/wachat.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Clean(filepath.Join(configHome, app.ApplicationName)), nil
}

// Path returns the config file inside dir.
func Path(dir string) string {
	return filepath.Join(dir, fileName+"."+fileType)
}

// Setup points v at the config file in dir and the WACHAT_ environment.
// OPENAI_API_KEY is honoured as well as WACHAT_OPENAI_API_KEY.
func Setup(v *viper.Viper, dir string) {
	v.AddConfigPath(dir)
	v.SetConfigType(fileType)
	v.SetConfigName(fileName)

	v.SetEnvPrefix(strings.ToUpper(app.ApplicationName))
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	v.AutomaticEnv()
	_ = v.BindEnv(KeyAPIKey, "WACHAT_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv(KeyBaseURL, "WACHAT_OPENAI_BASE_URL", "OPENAI_BASE_URL")

	SetDefaults(v)
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyModel, "whisper-1")
	v.SetDefault(KeyLanguage, "he")
	v.SetDefault(KeyBatchSize, app.DefaultBatchSize)
	v.SetDefault(KeyTimeout, 2*time.Minute)
	v.SetDefault(KeyMediaOmitted, string(app.MediaOmittedSequence))
	v.SetDefault(KeySystemMessages, true)
	v.SetDefault(KeyRemoveEmpty, true)
	v.SetDefault(KeyMerge, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogJSON, false)
}

// Read loads the config file. A missing file is not an error.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

// Load decodes v into a Config, falls back to the OS keyring for the API
// key and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	if cfg.OpenAIAPIKey != "" {
		cfg.APIKeySource = "config"
	} else if key, err := keyring.Get(app.ApplicationName, keyringUser); err == nil && key != "" {
		cfg.OpenAIAPIKey = key
		cfg.APIKeySource = "keyring"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every setting and reports all problems at once. It
// normalises the language hint to its base ISO 639-1 code.
func (c *Config) Validate() error {
	var errs []error

	if c.Transcription.Model == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyModel))
	}
	if lang, err := NormalizeLanguage(c.Transcription.Language); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLanguage, err))
	} else {
		c.Transcription.Language = lang
	}
	if c.Transcription.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyBatchSize, c.Transcription.BatchSize))
	}
	if c.Transcription.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %s", KeyTimeout, c.Transcription.Timeout))
	}
	if _, err := app.ParseMediaOmittedPolicy(c.MediaOmitted); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyMediaOmitted, err))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}

	return errors.Join(errs...)
}

// RequireAPIKey returns ErrNoAPIKey when no key was found anywhere.
func (c *Config) RequireAPIKey() error {
	if c.OpenAIAPIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// NormalizeLanguage turns a language hint such as "he", "iw" or "he-IL"
// into the two-letter code the transcription API expects.
func NormalizeLanguage(s string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", s, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("invalid language %q", s)
	}
	code := base.String()
	if len(code) != 2 {
		return "", fmt.Errorf("language %q has no two-letter code", s)
	}
	return code, nil
}

// LoadPatterns reads the extra cleanup patterns file, if configured.
func (c *Config) LoadPatterns() ([]string, error) {
	if c.Cleanup.PatternsFile == "" {
		return nil, nil
	}
	f, err := os.Open(c.Cleanup.PatternsFile)
	if err != nil {
		return nil, fmt.Errorf("opening patterns file: %w", err)
	}
	defer f.Close()

	return app.LoadPatterns(f)
}

// SaveAPIKey writes key into the config file in dir, keeping other settings.
func SaveAPIKey(dir, key string) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil { //nolint:gosec // path from XDG_CONFIG_HOME or user home dir
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := Path(dir)
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("reading config file: %w", err)
		}
	}

	v.Set(KeyAPIKey, key)
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return "", fmt.Errorf("restricting config permissions: %w", err)
	}
	return path, nil
}

// ExistingAPIKey returns the key stored in the config file in dir, if any.
func ExistingAPIKey(dir string) string {
	v := viper.New()
	v.SetConfigFile(Path(dir))
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.GetString(KeyAPIKey)
}

// StoreKeyring saves the API key in the OS keyring.
func StoreKeyring(key string) error {
	if err := keyring.Set(app.ApplicationName, keyringUser, key); err != nil {
		return fmt.Errorf("storing API key in keyring: %w", err)
	}
	return nil
}
