// Copyright 2024-2026 Aiku AI

package config

import (
	"strings"

	"maunium.net/go/mautrix/id"
)

// Permissions is the resolved set of access flags for a single user. Each
// level implies all lower levels in the ordering
// relaybot < user < puppeting < full (matrix puppeting) < admin.
type Permissions struct {
	Relaybot        bool
	User            bool
	Puppeting       bool
	MatrixPuppeting bool
	Admin           bool

	// Level is the raw permission string the flags were derived from.
	Level string
}

func permissionsForLevel(level string) Permissions {
	admin := level == "admin"
	matrixPuppeting := level == "full" || admin
	puppeting := level == "puppeting" || matrixPuppeting
	user := level == "user" || puppeting
	relaybot := level == "relaybot" || user
	return Permissions{
		Relaybot:        relaybot,
		User:            user,
		Puppeting:       puppeting,
		MatrixPuppeting: matrixPuppeting,
		Admin:           admin,
		Level:           level,
	}
}

func (cfg *Config) permissionLevel(key string) string {
	level, _ := cfg.GetMap("bridge.permissions")[key].(string)
	return level
}

// GetPermissions resolves the permissions for a Matrix user ID. Lookup
// order: the exact user ID, then the user's homeserver, then the wildcard
// "*" entry. A missing wildcard yields the zero level (no flags set).
func (cfg *Config) GetPermissions(userID id.UserID) Permissions {
	permissions := cfg.GetMap("bridge.permissions")
	if _, ok := permissions[string(userID)]; ok {
		return permissionsForLevel(cfg.permissionLevel(string(userID)))
	}
	if _, homeserver, found := strings.Cut(string(userID), ":"); found {
		if _, ok := permissions[homeserver]; ok {
			return permissionsForLevel(cfg.permissionLevel(homeserver))
		}
	}
	return permissionsForLevel(cfg.permissionLevel("*"))
}
