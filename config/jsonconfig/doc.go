/*
Package jsonconfig reads server settings from JSON into ice modules.

A Schema lists the configurable options and, per option, the
implementations a "Type" key selects:

	schema := jsonconfig.Schema{
		"Transport": {
			"inmemory": &eqconfig.InMemoryTransportConfig{},
			"":         &eqconfig.InMemoryTransportConfig{Type: "inmemory"},
		},
	}

Parse unmarshals each option into its implementation and returns a
Configuration, which installs every implementation into a MagicBag.

	conf, err := schema.Parse([]byte(`{"Transport": {"Type": "inmemory"}}`))
	bag.InstallModule(conf)
*/
package jsonconfig
