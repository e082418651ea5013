package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// Start returns a debug logger that writes through t.Log.
func Start(t testing.TB) zerolog.Logger {
	t.Helper()
	log := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Str("test", t.Name()).Logger()
	return log
}
