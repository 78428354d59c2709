package jsonconfig_test

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitter/equalizer/config/jsonconfig"
	"github.com/twitter/equalizer/ice"
)

type memoryTransportConfig struct {
	Type string
}

func (c *memoryTransportConfig) Install(b *ice.MagicBag) {}

type socketTransportConfig struct {
	Type string
	Port int
}

func (c *socketTransportConfig) Install(b *ice.MagicBag) {}

type defaultLoopConfig struct {
	Type   string
	MaxFPS float64
}

func (c *defaultLoopConfig) Install(b *ice.MagicBag) {
	b.Put(func() float64 { return c.MaxFPS })
}

func schema() jsonconfig.Schema {
	return jsonconfig.Schema{
		"Transport": {
			"memory": &memoryTransportConfig{},
			"socket": &socketTransportConfig{},
			"":       &memoryTransportConfig{Type: "memory"},
		},
		"Loop": {
			"default": &defaultLoopConfig{},
			"":        &defaultLoopConfig{Type: "default", MaxFPS: 60},
		},
	}
}

const defaults = `{
 "Loop": {
  "Type": "default",
  "MaxFPS": 60
 },
 "Transport": {
  "Type": "memory"
 }
}`

func TestParse(t *testing.T) {
	for _, test := range []struct {
		input, output string
	}{
		{"", defaults},
		{defaults, defaults},
		{`{"Transport": {"Type": "socket", "Port": 4242}}`, `{
 "Loop": {
  "Type": "default",
  "MaxFPS": 60
 },
 "Transport": {
  "Type": "socket",
  "Port": 4242
 }
}`},
		{`{"Loop": {"Type": "default", "MaxFPS": 30}}`, `{
 "Loop": {
  "Type": "default",
  "MaxFPS": 30
 },
 "Transport": {
  "Type": "memory"
 }
}`},
	} {
		conf, err := schema().Parse([]byte(test.input))
		require.NoError(t, err, test.input)
		out, err := json.MarshalIndent(&conf, "", " ")
		require.NoError(t, err)
		assert.Equal(t, test.output, string(out), test.input)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{
		`{`,
		`{"Transport": {"Type": "carrier-pigeon"}}`,
		`{"Transport": {"Type": 3}}`,
		`{"Scheduler": {}}`,
		`{"Loop": {"Type": "default", "MaxFPS": "fast"}}`,
	} {
		_, err := schema().Parse([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestConfigurationInstalls(t *testing.T) {
	conf, err := schema().Parse([]byte(`{"Loop": {"Type": "default", "MaxFPS": 24}}`))
	require.NoError(t, err)
	bag := ice.NewMagicBag()
	bag.InstallModule(conf)
	var maxFPS float64
	require.NoError(t, bag.Extract(&maxFPS))
	assert.Equal(t, 24.0, maxFPS)
}

func TestGetConfigText(t *testing.T) {
	asset := func(name string) ([]byte, error) {
		if name == "config/local.json" {
			return []byte(defaults), nil
		}
		return nil, errors.Errorf("no asset %s", name)
	}

	text, err := jsonconfig.GetConfigText("local.json", asset)
	require.NoError(t, err)
	assert.Equal(t, defaults, string(text))

	_, err = jsonconfig.GetConfigText("missing.json", asset)
	assert.Error(t, err)

	text, err = jsonconfig.GetConfigText(`{"Loop": {}}`, asset)
	require.NoError(t, err)
	assert.Equal(t, `{"Loop": {}}`, string(text))
}
