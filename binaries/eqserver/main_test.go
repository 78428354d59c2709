package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitter/equalizer/config/jsonconfig"
	"github.com/twitter/equalizer/server/api"
)

var settingsFiles = []string{"local.json"}

// The shipped settings must parse.
func TestConfigParses(t *testing.T) {
	for _, name := range settingsFiles {
		text, err := assets.ReadFile(fmt.Sprintf("config/%v", name))
		require.NoError(t, err, name)
		_, schema := api.Defaults()
		_, err = schema.Parse(text)
		assert.NoError(t, err, name)
	}
}

func TestValidateCommand(t *testing.T) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOutput(out)
	cmd.SetArgs([]string{"validate", "--settings", `{"Stats": {"Type": "nil"}}`, "--cluster", "config/single.hcl"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "single: 1 nodes, 1 layouts, 1 canvases, 1 compounds, latency 1\n", out.String())
}

func TestValidateCommand_MissingCluster(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOutput(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--settings", `{}`})
	assert.Error(t, cmd.Execute())
}

func TestSettingsAsset(t *testing.T) {
	_, err := jsonconfig.GetConfigText("missing.json", assets.ReadFile)
	assert.Error(t, err)
}
