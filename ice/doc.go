/*
Package ice is a small reflection based dependency injector.

A MagicBag binds each type to a provider, a function returning either the
type or the type and an error. Extract builds a value of a bound type,
calling the providers of every argument first. Each type is constructed
at most once per Extract, so a transport shared by the config and the
server is the same value in both.

	bag := ice.NewMagicBag()
	bag.PutMany(
		func() transport.Transport { return inmemory.NewTransport() },
		func(tr transport.Transport) (*loader.Cluster, error) { ... },
	)
	var s *server.Server
	err := bag.Extract(&s)

Modules install several providers at once. A parsed jsonconfig
Configuration is such a module, which is how settings files choose
implementations.
*/
package ice
