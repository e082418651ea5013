// Package protocol defines the type tags and payload records exchanged
// between the MUD server, the session conveyor and its units.
package protocol

import "fmt"

// MessageType tags a server-originated payload.
type MessageType uint16

// CommandType tags an action flowing toward the server or a local unit.
type CommandType uint16

// PluginTypeBase is the first tag available to plugins. Everything below it
// is reserved for built-ins, for messages and commands alike.
const PluginTypeBase = 64

// built-in message tags
const (
	MessageText         MessageType = 1
	MessageLore         MessageType = 11
	MessageGroup        MessageType = 12
	MessageRoomMonsters MessageType = 13
)

// built-in command tags
const (
	CommandInput CommandType = iota + 1
	CommandSendText
	CommandSendRaw
	CommandConnect
	CommandDisconnect
	CommandSetVariable
	CommandClearVariable
	CommandIf
	CommandStartLog
	CommandStopLog
	CommandBroadcast
	CommandRoute
	CommandHotkey
	CommandLoreLookup
	CommandLoreSearch
	CommandLoreComment
	CommandStats
	CommandStatsReset
	CommandTick
	CommandToggleFullScreen
)

// IsBuiltin reports whether t lies in the reserved range.
func (t MessageType) IsBuiltin() bool { return t < PluginTypeBase }

// IsBuiltin reports whether t lies in the reserved range.
func (t CommandType) IsBuiltin() bool { return t < PluginTypeBase }

var messageNames = map[MessageType]string{
	MessageText:         "text",
	MessageLore:         "lore",
	MessageGroup:        "group",
	MessageRoomMonsters: "room_monsters",
}

func (t MessageType) String() string {
	if n, ok := messageNames[t]; ok {
		return n
	}
	return fmt.Sprintf("message(%d)", uint16(t))
}

var commandNames = map[CommandType]string{
	CommandInput:            "input",
	CommandSendText:         "send_text",
	CommandSendRaw:          "send_raw",
	CommandConnect:          "connect",
	CommandDisconnect:       "disconnect",
	CommandSetVariable:      "set_variable",
	CommandClearVariable:    "clear_variable",
	CommandIf:               "if",
	CommandStartLog:         "start_log",
	CommandStopLog:          "stop_log",
	CommandBroadcast:        "broadcast",
	CommandRoute:            "route",
	CommandHotkey:           "hotkey",
	CommandLoreLookup:       "lore_lookup",
	CommandLoreSearch:       "lore_search",
	CommandLoreComment:      "lore_comment",
	CommandStats:            "stats",
	CommandStatsReset:       "stats_reset",
	CommandTick:             "tick",
	CommandToggleFullScreen: "toggle_full_screen",
}

func (t CommandType) String() string {
	if n, ok := commandNames[t]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", uint16(t))
}
