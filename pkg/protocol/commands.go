package protocol

import "time"

// Input is a raw line typed by the user or produced by a script, before
// alias, variable and # command processing.
type Input struct {
	Text string
}

// SendText is literal text for the server.
type SendText struct {
	Text string
}

// SendRaw is a byte sequence written to the server as is.
type SendRaw struct {
	Data []byte
}

type Connect struct {
	Address string
}

type Disconnect struct{}

type SetVariable struct {
	Name  string
	Value string
}

type ClearVariable struct {
	Name string
}

// If evaluates Cond and re-submits Then or Else as input.
type If struct {
	Cond string
	Then string
	Else string
}

type StartLog struct {
	Path string
}

type StopLog struct{}

// Broadcast submits Text as input to every live session.
type Broadcast struct {
	Text string
}

// Route submits Text as input to the session called Session.
type Route struct {
	Session string
	Text    string
}

type Hotkey struct {
	Key string
}

type LoreLookup struct {
	Name string
}

type LoreSearch struct {
	Query string
}

type LoreComment struct {
	Name    string
	Comment string
}

// Stats asks for the counters, or with Recent > 0 for that many archived
// fights, newest first.
type Stats struct {
	Recent int
}

type StatsReset struct{}

// Tick is the periodic clock pulse the multiplexer pushes into every session.
type Tick struct {
	Now     time.Time
	Elapsed time.Duration
}

type ToggleFullScreen struct{}
