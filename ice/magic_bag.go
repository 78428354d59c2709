package ice

import (
	"reflect"

	"github.com/pkg/errors"
)

// Key is what a MagicBag knows how to construct.
type Key reflect.Type

// Provider is a func returning a value, or a value and an error.
type Provider interface{}

// Module installs a group of providers.
type Module interface {
	Install(b *MagicBag)
}

// MagicBag binds Keys to the Providers that construct them.
type MagicBag struct {
	bindings map[Key]Provider
}

func NewMagicBag() *MagicBag {
	return &MagicBag{bindings: make(map[Key]Provider)}
}

// InstallModule installs m, whose providers replace earlier bindings of
// the same keys.
func (b *MagicBag) InstallModule(m Module) {
	m.Install(b)
}

// Put binds the result type of f to f. It panics if f is not a provider.
func (b *MagicBag) Put(f Provider) {
	key, err := providedKey(reflect.TypeOf(f))
	if err != nil {
		panic(err)
	}
	b.bindings[key] = f
}

func (b *MagicBag) PutMany(fs ...Provider) {
	for _, f := range fs {
		b.Put(f)
	}
}

// Has reports whether the bag can construct key.
func (b *MagicBag) Has(key Key) bool {
	_, ok := b.bindings[key]
	return ok
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func providedKey(t reflect.Type) (Key, error) {
	if t == nil || t.Kind() != reflect.Func {
		return nil, errors.Errorf("provider must be a func, was %v", t)
	}
	if t.IsVariadic() {
		return nil, errors.Errorf("provider must not be variadic, was %v", t)
	}
	switch t.NumOut() {
	case 1:
	case 2:
		if !t.Out(1).Implements(errorType) {
			return nil, errors.Errorf("second result of provider %v must be an error", t)
		}
	default:
		return nil, errors.Errorf("provider %v must return a value, or a value and an error", t)
	}
	return t.Out(0), nil
}
