// Copyright 2024-2026 Aiku AI

package config

import (
	"fmt"
	"regexp"
	"strings"

	"maunium.net/go/mautrix/appservice"
)

// GenerateRegistration builds a fresh appservice registration manifest from
// the current config. New as/hs tokens are generated and written back into
// the config on every call; there is no partial-update path. The manifest
// is written to RegistrationPath on the next Save.
func (cfg *Config) GenerateRegistration() *appservice.Registration {
	homeserver := cfg.GetString("homeserver.domain", "")

	usernameFormat := strings.Replace(
		cfg.GetString("bridge.username_template", "telegram_{userid}"),
		"{userid}", ".+", 1)
	aliasFormat := strings.Replace(
		cfg.GetString("bridge.alias_template", "telegram_{groupname}"),
		"{groupname}", ".+", 1)

	cfg.Set("appservice.as_token", NewToken())
	cfg.Set("appservice.hs_token", NewToken())

	registration := appservice.CreateRegistration()
	registration.ID = cfg.GetString("appservice.id", "telegram")
	registration.AppToken = cfg.GetString("appservice.as_token", "")
	registration.ServerToken = cfg.GetString("appservice.hs_token", "")
	registration.URL = cfg.GetString("appservice.address", "")
	registration.SenderLocalpart = cfg.GetString("appservice.bot_username", "")
	falsy := false
	registration.RateLimited = &falsy
	registration.Namespaces.UserIDs.Register(
		regexp.MustCompile(fmt.Sprintf("@%s:%s", usernameFormat, homeserver)), true)
	registration.Namespaces.RoomAliases.Register(
		regexp.MustCompile(fmt.Sprintf("#%s:%s", aliasFormat, homeserver)), true)

	cfg.registration = registration
	return registration
}
