package jsonconfig

import (
	"encoding/json"
	"path"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/ice"
)

// Schema maps each configurable option to its implementations.
type Schema map[string]Implementations

// Implementations maps a "Type" value to the Implementation it selects.
// The "" entry is the default, used as-is when the option is left out.
type Implementations map[string]Implementation

// Implementation is unmarshaled from its option's JSON, then installs its
// providers as an ice Module. Marshaling it prints the effective setting.
type Implementation interface {
	ice.Module
}

// Configuration holds the chosen implementation of every option. It is
// itself a Module installing each of them.
type Configuration map[string]ice.Module

func (c Configuration) Install(bag *ice.MagicBag) {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		bag.InstallModule(c[name])
	}
}

var emptyJSON = []byte("{}")

// Parse picks and fills the implementation of each option from text.
// Options text names but the schema doesn't are an error.
func (schema Schema) Parse(text []byte) (Configuration, error) {
	if len(text) == 0 {
		text = emptyJSON
	}
	var options map[string]json.RawMessage
	if err := json.Unmarshal(text, &options); err != nil {
		return nil, errors.Wrap(err, "parsing top-level config")
	}
	for name := range options {
		if _, ok := schema[name]; !ok {
			return nil, errors.Errorf("unknown option %q", name)
		}
	}

	result := make(Configuration, len(schema))
	for name, impls := range schema {
		text := options[name]
		implName, err := parseType(text)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing type of %s", name)
		}
		impl, ok := impls[implName]
		if !ok {
			return nil, errors.Errorf("%s: %q is not a known type", name, implName)
		}
		if len(text) > 0 {
			if err := json.Unmarshal(text, &impl); err != nil {
				return nil, errors.Wrapf(err, "parsing %s", name)
			}
		}
		result[name] = impl
	}
	log.WithFields(log.Fields{"options": len(result)}).Debug("Parsed settings")
	return result, nil
}

// parseType reads the "Type" key of an option.
func parseType(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var t struct{ Type string }
	if err := json.Unmarshal(data, &t); err != nil {
		return "", err
	}
	return t.Type, nil
}

var assetName = regexp.MustCompile(`^[[:alnum:]_-]*\.[[:alnum:]]*$`)

// GetConfigText resolves a settings flag. A bare file name such as
// local.json is read through asset from the config directory, anything
// else is taken as literal JSON.
func GetConfigText(configFlag string, asset func(string) ([]byte, error)) ([]byte, error) {
	if assetName.MatchString(configFlag) {
		name := path.Join("config", configFlag)
		log.WithFields(log.Fields{"file": name}).Info("Reading settings")
		text, err := asset(name)
		if err != nil {
			return nil, errors.Wrapf(err, "loading settings %s", name)
		}
		return text, nil
	}
	log.WithFields(log.Fields{"settings": configFlag}).Info("Using settings flag as JSON")
	return []byte(configFlag), nil
}
