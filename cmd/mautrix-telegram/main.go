// Copyright 2024-2026 Aiku AI

// Command mautrix-telegram manages the configuration lifecycle of the
// Matrix-Telegram puppeting bridge: it migrates old config schemas onto the
// current one, generates the appservice registration, and initializes the
// encryption state database. The Telegram network connection itself is
// started separately.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/mautrix-telegram/pkg/config"
	"github.com/aiku/mautrix-telegram/pkg/cryptostore"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
var registrationPath = flag.MakeFull("r", "registration", "The path where to save the appservice registration file.", "registration.yaml").String()
var basePath = flag.MakeFull("b", "base-config", "The path to the example config used as the migration base. Defaults to the embedded example.", "").String()
var generateRegistration = flag.MakeFull("g", "generate-registration", "Generate registration and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles(
		"mautrix-telegram - A Matrix-Telegram puppeting bridge.",
		"mautrix-telegram [-h] [-c <path>] [-r <path>] [-g]")
	if err := flag.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Info().Str("tag", Tag).Str("commit", Commit).Str("build_time", BuildTime).
		Msg("Initializing mautrix-telegram")

	cfg := config.New(*configPath, *registrationPath, *basePath)
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		if err = os.WriteFile(*configPath, []byte(config.ExampleConfig), 0o600); err != nil {
			log.Fatal().Err(err).Msg("Failed to write example config")
		}
		log.Info().Str("path", *configPath).
			Msg("Wrote example config, fill it out and restart the bridge")
		os.Exit(0)
	}
	if err := cfg.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Update(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate config")
	}

	if *generateRegistration {
		cfg.GenerateRegistration()
		if err := cfg.Save(); err != nil {
			log.Fatal().Err(err).Msg("Failed to save registration")
		}
		log.Info().Str("path", *registrationPath).Msg("Registration generated")
		os.Exit(0)
	}

	initDatabase(log, cfg)
}

// initDatabase opens the encryption state database and creates the schema.
// Only SQLite URIs (sqlite:///path) are handled here; anything else is left
// to the network side's own setup.
func initDatabase(log zerolog.Logger, cfg *config.Config) {
	uri := cfg.GetString("appservice.database", "")
	path, ok := strings.CutPrefix(uri, "sqlite:///")
	if !ok {
		log.Debug().Str("uri", uri).Msg("Not a SQLite database URI, skipping state store init")
		return
	}
	rawDB, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	store, err := cryptostore.NewStore(rawDB, "sqlite3", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wrap database")
	}
	defer store.Close()
	if err = store.Upgrade(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to upgrade encryption state store")
	}
	log.Info().Str("path", path).Msg("Encryption state store ready")
}
