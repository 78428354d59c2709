package hooks

import (
	"io/ioutil"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHook(t *testing.T) {
	logger := log.New()
	logger.Out = ioutil.Discard
	logger.AddHook(NewContextHook())
	recorded := test.NewLocal(logger)

	logger.WithFields(log.Fields{"frame": 3}).Info("Frame started")

	entry := recorded.LastEntry()
	require.NotNil(t, entry)
	assert.Regexp(t, `^hooks/context_hook_test\.go:\d+$`, entry.Data[FileLineKey])
	assert.Equal(t, 3, entry.Data["frame"])
}

func TestShortPath(t *testing.T) {
	assert.Equal(t, "config/frame.go", shortPath("/src/equalizer/server/config/frame.go"))
}
