// Copyright 2024-2026 Aiku AI

package config

import (
	"crypto/rand"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/appservice"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config wraps a Document loaded from disk together with the paths needed
// for migration and registration generation.
type Config struct {
	*Document

	Path             string
	RegistrationPath string
	BasePath         string

	registration *appservice.Registration
}

// New creates a Config for the given file paths. BasePath may be empty, in
// which case the embedded example config is used as the migration base.
func New(path, registrationPath, basePath string) *Config {
	return &Config{
		Document:         NewDocument(),
		Path:             path,
		RegistrationPath: registrationPath,
		BasePath:         basePath,
	}
}

// Load reads and parses the config file. A parse failure is fatal to
// startup and is returned as-is.
func (cfg *Config) Load() error {
	raw, err := os.ReadFile(cfg.Path)
	if err != nil {
		return err
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Document = doc
	return nil
}

// LoadBase loads the base template document. When the base file is missing
// or unreadable, the embedded example config is used. Returns nil only when
// even the embedded template fails to parse, which means a broken build.
func (cfg *Config) LoadBase() *Document {
	if cfg.BasePath != "" {
		if raw, err := os.ReadFile(cfg.BasePath); err == nil {
			if doc, err := ParseDocument(raw); err == nil {
				return doc
			}
		}
		return nil
	}
	doc, err := ParseDocument([]byte(ExampleConfig))
	if err != nil {
		return nil
	}
	return doc
}

// Save writes the config and, if one was generated during this run, the
// registration manifest. The two writes are independent and non-atomic: a
// crash between them can leave one file updated and the other not.
func (cfg *Config) Save() error {
	raw, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = os.WriteFile(cfg.Path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if cfg.registration != nil && cfg.RegistrationPath != "" {
		raw, err = yaml.Marshal(cfg.registration)
		if err != nil {
			return fmt.Errorf("failed to marshal registration: %w", err)
		}
		if err = os.WriteFile(cfg.RegistrationPath, raw, 0o600); err != nil {
			return fmt.Errorf("failed to write registration: %w", err)
		}
	}
	return nil
}

// Registration returns the registration manifest generated during this run,
// or nil if GenerateRegistration has not been called.
func (cfg *Config) Registration() *appservice.Registration {
	return cfg.registration
}

const tokenChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewToken generates a 64-character random token of lowercase letters and
// digits. Tokens are not checked for uniqueness; the collision probability
// is negligible.
func NewToken() string {
	raw := make([]byte, 64)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Errorf("failed to read random bytes for token: %w", err))
	}
	for i, b := range raw {
		raw[i] = tokenChars[int(b)%len(tokenChars)]
	}
	return string(raw)
}
