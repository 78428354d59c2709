package ice

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// InjectionError is returned by Extract when a value could not be built.
// Chain lists the keys under construction, outermost first.
type InjectionError struct {
	Err   error
	Chain []Key
}

func (e *InjectionError) Error() string {
	keys := make([]string, len(e.Chain))
	for i, k := range e.Chain {
		keys[i] = fmt.Sprint(k)
	}
	return fmt.Sprintf("injecting %s: %v", strings.Join(keys, " -> "), e.Err)
}

func (e *InjectionError) Cause() error { return e.Err }

// Extract constructs the value dest points to.
func (b *MagicBag) Extract(dest interface{}) error {
	destVal := reflect.ValueOf(dest)
	if destVal.Kind() != reflect.Ptr || destVal.IsNil() {
		return errors.Errorf("dest must be a non-nil pointer, was %T", dest)
	}
	e := &evaluation{bag: b, values: make(map[Key]reflect.Value)}
	v, err := e.construct(destVal.Type().Elem())
	if err != nil {
		return err
	}
	destVal.Elem().Set(v)
	return nil
}

// evaluation is the state of one Extract.
type evaluation struct {
	bag    *MagicBag
	values map[Key]reflect.Value
	chain  []Key
}

func (e *evaluation) fail(err error) error {
	chain := append([]Key(nil), e.chain...)
	return &InjectionError{Err: err, Chain: chain}
}

func (e *evaluation) construct(key Key) (reflect.Value, error) {
	if v, ok := e.values[key]; ok {
		return v, nil
	}
	for _, k := range e.chain {
		if k == key {
			e.chain = append(e.chain, key)
			return reflect.Value{}, e.fail(errors.New("dependency cycle"))
		}
	}
	e.chain = append(e.chain, key)
	defer func() { e.chain = e.chain[:len(e.chain)-1] }()

	provider, ok := e.bag.bindings[key]
	if !ok {
		return reflect.Value{}, e.fail(errors.Errorf("no provider for %v", key))
	}
	pv := reflect.ValueOf(provider)
	pt := pv.Type()
	args := make([]reflect.Value, pt.NumIn())
	for i := range args {
		arg, err := e.construct(pt.In(i))
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = arg
	}

	results := pv.Call(args)
	if len(results) == 2 && !results[1].IsNil() {
		err := results[1].Interface().(error)
		return reflect.Value{}, e.fail(errors.Wrapf(err, "provider %s", funcName(provider)))
	}
	e.values[key] = results[0]
	log.WithFields(log.Fields{"key": fmt.Sprint(key), "provider": funcName(provider)}).Debug("Constructed")
	return results[0], nil
}

func funcName(f interface{}) string {
	if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
		return fn.Name()
	}
	return "?"
}
