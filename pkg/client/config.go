package client

import (
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Config holds the per-session conveyor settings.
type Config struct {
	// Charset decodes the server stream and encodes outbound text.
	Charset encoding.Encoding
	// OutputBuffer bounds the UI hand-off channel of each session.
	OutputBuffer int
	// OutboundBuffer bounds the network hand-off channel of each session.
	OutboundBuffer int
	// HistoryLimit bounds the input history of each session.
	HistoryLimit int
	// QueueLimit bounds the work waiting on each session's conveyor.
	QueueLimit int
	// AccumulatorIdleTimeout discards out-of-band blocks that stall mid-way.
	// Zero disables it.
	AccumulatorIdleTimeout time.Duration
	// TickInterval is the period of the Tick command pushed by Multiplexer.Run.
	TickInterval time.Duration
}

// DefaultConfig returns settings for a Windows-1251 server.
func DefaultConfig() Config {
	return Config{
		Charset:                charmap.Windows1251,
		OutputBuffer:           1024,
		OutboundBuffer:         256,
		HistoryLimit:           200,
		QueueLimit:             4096,
		AccumulatorIdleTimeout: 2 * time.Minute,
		TickInterval:           time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Charset == nil {
		c.Charset = d.Charset
	}
	if c.OutputBuffer <= 0 {
		c.OutputBuffer = d.OutputBuffer
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = d.OutboundBuffer
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = d.QueueLimit
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	return c
}
