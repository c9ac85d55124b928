// Package config loads plankit settings: the known database aliases, the
// folders each database exports to, and the process-wide folders and
// defaults shared by the CLI, the worker and the web server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDatabase is the alias used when no database is nominated.
const DefaultDatabase = "default"

// Settings holds the whole configuration.
type Settings struct {
	// Databases maps an alias to its connection and folder settings.
	Databases map[string]Database `yaml:"databases"`

	// LogDir receives command log files (exporttofolder-*.log).
	LogDir string `yaml:"log_dir" env:"PLANKIT_LOG_DIR"`

	// CSVCharset is the encoding of CSV files rendered from reports.
	CSVCharset string `yaml:"csv_charset" env:"PLANKIT_CSV_CHARSET"`

	// DocumentationURL is the base of the help menu documentation link;
	// empty serves the documentation from the application itself.
	DocumentationURL string `yaml:"documentation_url" env:"PLANKIT_DOCUMENTATION_URL"`
}

// Database is the per-alias section of the settings.
type Database struct {
	DSN string `yaml:"dsn"`

	// FileUploadFolder is the root under which the export folder lives.
	// An empty value disables folder exports for the database.
	FileUploadFolder string `yaml:"file_upload_folder"`

	// Schema holds the planning tables; DefaultSchema when empty.
	Schema string `yaml:"schema"`
}

// DefaultSchema is the schema of a database without a schema setting.
const DefaultSchema = "public"

// overrides are read from the environment after the YAML file; they only
// ever apply to the default database.
type overrides struct {
	DSN              string `env:"PLANKIT_DATABASE_URL"`
	FileUploadFolder string `env:"PLANKIT_FILE_UPLOAD_FOLDER"`
}

func (s *Settings) withDefaults() {
	if s.Databases == nil {
		s.Databases = map[string]Database{}
	}
	if strings.TrimSpace(s.LogDir) == "" {
		s.LogDir = "logs"
	}
	if strings.TrimSpace(s.CSVCharset) == "" {
		s.CSVCharset = "utf-8"
	}
}

// Load reads settings from path (optional; empty means "environment only"),
// after loading a .env file from the working directory if one exists.
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	s := &Settings{}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if err := applyEnv(s); err != nil {
		return nil, err
	}
	s.withDefaults()
	return s, nil
}

// Parse builds settings from YAML bytes without touching the environment.
func Parse(raw []byte) (*Settings, error) {
	s := &Settings{}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.withDefaults()
	return s, nil
}

func applyEnv(s *Settings) error {
	if err := env.Parse(s); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	var o overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.DSN == "" && o.FileUploadFolder == "" {
		return nil
	}
	if s.Databases == nil {
		s.Databases = map[string]Database{}
	}
	db := s.Databases[DefaultDatabase]
	if o.DSN != "" {
		db.DSN = o.DSN
	}
	if o.FileUploadFolder != "" {
		db.FileUploadFolder = o.FileUploadFolder
	}
	s.Databases[DefaultDatabase] = db
	return nil
}

// Database returns the settings of alias and whether it is configured.
func (s *Settings) Database(alias string) (Database, bool) {
	db, ok := s.Databases[alias]
	if ok && strings.TrimSpace(db.Schema) == "" {
		db.Schema = DefaultSchema
	}
	return db, ok
}
