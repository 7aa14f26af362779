package casjobs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config carries everything needed to construct a Client. Values come from
// the environment, an optional YAML config file, or both, with the
// environment taking precedence.
type Config struct {
	WSID         int
	Password     string
	BaseURL      string
	QueryContext string
}

// LoadConfig reads configuration from the CASJOBS_* environment variables
// and, if present, $HOME/.casjobs/config.yaml. Recognized keys: wsid,
// password, url, context (CASJOBS_WSID, CASJOBS_PW, CASJOBS_URL,
// CASJOBS_CONTEXT in the environment). Credentials are required; url and
// context fall back to the SDSS defaults.
func LoadConfig() (Config, error) {
	return loadConfig("")
}

// LoadConfigFile is LoadConfig with an explicit config file path instead
// of the home directory search.
func LoadConfigFile(path string) (Config, error) {
	return loadConfig(path)
}

func loadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("url", DefaultBaseURL)
	v.SetDefault("context", DefaultQueryContext)

	v.BindEnv("wsid", "CASJOBS_WSID")
	v.BindEnv("password", "CASJOBS_PW")
	v.BindEnv("url", "CASJOBS_URL")
	v.BindEnv("context", "CASJOBS_CONTEXT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".casjobs"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return Config{}, fmt.Errorf("failed to read config: %w", err)
				}
			}
		}
	}

	cfg := Config{
		WSID:         v.GetInt("wsid"),
		Password:     v.GetString("password"),
		BaseURL:      v.GetString("url"),
		QueryContext: v.GetString("context"),
	}
	if cfg.WSID == 0 {
		return Config{}, errors.New("no WSID configured: set CASJOBS_WSID or the wsid config key")
	}
	if cfg.Password == "" {
		return Config{}, errors.New("no password configured: set CASJOBS_PW or the password config key")
	}
	return cfg, nil
}
