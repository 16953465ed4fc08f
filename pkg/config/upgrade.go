// Copyright 2024-2026 Aiku AI

package config

import "fmt"

// Update migrates the loaded config onto the base template schema and saves
// the result. Recognized keys are copied from the old config into a fresh
// copy of the base; keys absent from the old config keep the base's
// defaults. When no base template is available the migration is a no-op.
func (cfg *Config) Update() error {
	base := cfg.LoadBase()
	if base == nil {
		return nil
	}

	copyKey := func(fromPath string, toPath ...string) {
		if !cfg.Has(fromPath) {
			return
		}
		to := fromPath
		if len(toPath) > 0 {
			to = toPath[0]
		}
		base.Set(to, cfg.Get(fromPath, nil))
	}

	copyMap := func(fromPath string, overrideExisting bool) {
		from := cfg.GetMap(fromPath)
		if from == nil {
			return
		}
		to := base.GetMap(fromPath)
		if to == nil || overrideExisting {
			to = make(map[string]any, len(from))
			base.Set(fromPath, to)
		}
		for key, value := range from {
			to[key] = value
		}
	}

	copyKey("homeserver.address")
	copyKey("homeserver.verify_ssl")
	copyKey("homeserver.domain")

	// Old configs specified the appservice listen address as a
	// protocol/hostname/port triple.
	if cfg.Has("appservice.protocol") && !cfg.Has("appservice.address") {
		base.Set("appservice.address", fmt.Sprintf("%v://%v:%v",
			cfg.Get("appservice.protocol", nil),
			cfg.Get("appservice.hostname", nil),
			cfg.Get("appservice.port", nil)))
	} else {
		copyKey("appservice.address")
	}
	copyKey("appservice.hostname")
	copyKey("appservice.port")

	copyKey("appservice.database")

	copyKey("appservice.public.enabled")
	copyKey("appservice.public.prefix")
	copyKey("appservice.public.external")

	copyKey("appservice.provisioning.enabled")
	copyKey("appservice.provisioning.prefix")
	copyKey("appservice.provisioning.shared_secret")
	if base.GetString("appservice.provisioning.shared_secret", "") == "generate" {
		base.Set("appservice.provisioning.shared_secret", NewToken())
	}

	copyKey("appservice.id")
	copyKey("appservice.bot_username")
	copyKey("appservice.bot_displayname")
	copyKey("appservice.bot_avatar")

	copyKey("appservice.as_token")
	copyKey("appservice.hs_token")

	copyKey("bridge.username_template")
	copyKey("bridge.alias_template")
	copyKey("bridge.displayname_template")

	copyKey("bridge.displayname_preference")

	copyKey("bridge.edits_as_replies")
	copyKey("bridge.highlight_edits")
	copyKey("bridge.bridge_notices")
	copyKey("bridge.bot_messages_as_notices")
	copyKey("bridge.max_initial_member_sync")
	copyKey("bridge.sync_channel_members")
	copyKey("bridge.max_telegram_delete")
	copyKey("bridge.allow_matrix_login")
	copyKey("bridge.inline_images")
	copyKey("bridge.plaintext_highlights")
	copyKey("bridge.public_portals")
	copyKey("bridge.native_stickers")
	copyKey("bridge.catch_up")
	copyKey("bridge.sync_with_custom_puppets")

	// message_formats used to be flat m_text/m_notice/... keys. Drop the
	// legacy subtree before copying so stale keys don't survive next to the
	// dict-shaped replacement.
	if cfg.Has("bridge.message_formats.m_text") {
		cfg.Delete("bridge.message_formats")
	}
	copyMap("bridge.message_formats", false)
	copyKey("bridge.state_event_formats.join")
	copyKey("bridge.state_event_formats.leave")
	copyKey("bridge.state_event_formats.name_change")

	copyKey("bridge.filter.mode")
	copyKey("bridge.filter.list")

	copyKey("bridge.command_prefix")

	cfg.migratePermissions(base)

	if !cfg.Has("bridge.relaybot") {
		copyKey("bridge.authless_relaybot_portals", "bridge.relaybot.authless_portals")
	} else {
		copyKey("bridge.relaybot.authless_portals")
		copyKey("bridge.relaybot.whitelist_group_admins")
		copyKey("bridge.relaybot.whitelist")
		copyKey("bridge.relaybot.ignore_own_incoming_events")
	}

	copyKey("telegram.api_id")
	copyKey("telegram.api_hash")
	copyKey("telegram.bot_token")
	copyKey("telegram.proxy.type")
	copyKey("telegram.proxy.address")
	copyKey("telegram.proxy.port")
	copyKey("telegram.proxy.rdns")
	copyKey("telegram.proxy.username")
	copyKey("telegram.proxy.password")

	// The old boolean debug flag maps onto the structured logging config.
	if cfg.Has("appservice.debug") && !cfg.Has("logging") {
		level := "INFO"
		if cfg.GetBool("appservice.debug", false) {
			level = "DEBUG"
		}
		base.Set("logging.root.level", level)
		base.Set("logging.loggers.mau.level", level)
		base.Set("logging.loggers.telethon.level", level)
	} else {
		copyKey("logging")
	}

	cfg.Document = base
	return cfg.Save()
}

// migratePermissions builds the bridge.permissions map in base. Legacy
// whitelist/admins lists are folded in with admin precedence: the admins
// list is applied after the whitelist, so an entry present in both ends up
// as admin.
func (cfg *Config) migratePermissions(base *Document) {
	migrate := !cfg.Has("bridge.permissions") ||
		cfg.Has("bridge.whitelist") ||
		cfg.Has("bridge.admins")
	permissions := make(map[string]any)
	for key, value := range cfg.GetMap("bridge.permissions") {
		permissions[key] = value
	}
	if !migrate {
		base.Set("bridge.permissions", permissions)
		return
	}
	for _, entry := range cfg.GetStringList("bridge.whitelist") {
		permissions[entry] = "full"
	}
	for _, entry := range cfg.GetStringList("bridge.admins") {
		permissions[entry] = "admin"
	}
	base.Set("bridge.permissions", permissions)
}
