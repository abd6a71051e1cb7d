package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/cristalhq/aconfig"
	"github.com/rotisserie/eris"
)

// DefaultDBConfigFile is read when --db-config is not given
const DefaultDBConfigFile = "db_conf.json"

// DBConfig holds the MySQL connection settings
type DBConfig struct {
	Host     string `json:"host" env:"HOST" default:"127.0.0.1"`
	Port     int    `json:"port" env:"PORT" default:"3306"`
	User     string `json:"user" env:"USER" default:"root"`
	Password string `json:"password" env:"PASSWORD"`
	DB       string `json:"db" env:"DB"`
}

// loadDBConfig reads the JSON configuration file and applies EMLSCAN_*
// environment overrides on top of it.
func loadDBConfig(path string) (*DBConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configurationError(eris.Errorf("DB configuration file not found: %s", path))
		}
		return nil, configurationError(eris.Wrapf(err, "failed to stat DB configuration %s", path))
	}

	var cfg DBConfig
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:          true,
		EnvPrefix:          "EMLSCAN",
		Files:              []string{path},
		FailOnFileNotFound: true,
		AllowUnknownFields: true,
		AllowUnknownEnvs:   true,
	})
	if err := loader.Load(); err != nil {
		return nil, configurationError(eris.Wrapf(err, "failed to load DB configuration %s", path))
	}
	return &cfg, nil
}
