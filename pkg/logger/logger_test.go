package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLBeforeInit(t *testing.T) {
	saved := Log
	Log = nil
	defer func() { Log = saved }()

	l := L()
	assert.NotNil(t, l)
	l.Infow("ignored", "key", 1)
	assert.NotNil(t, WithFields(map[string]interface{}{"pool": "p1"}))
}

func TestInitLogger(t *testing.T) {
	saved := Log
	defer func() { Log = saved }()

	assert.NoError(t, InitLogger(true))
	assert.NotNil(t, Log)
	assert.Equal(t, Log, L())
	Sync()
}
