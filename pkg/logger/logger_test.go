package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewSetsGlobalLevel(t *testing.T) {
	New(Config{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	New(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestNewDefaultsUnknownLevelToInfo(t *testing.T) {
	New(Config{Level: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	New(Config{})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
