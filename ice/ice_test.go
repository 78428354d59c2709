package ice

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type latency uint32

type sender interface {
	Send(node string) int
}

type countingSender struct{ sent int }

func (s *countingSender) Send(node string) int {
	s.sent++
	return s.sent
}

type topology struct {
	latency latency
	sender  sender
}

type host struct {
	topo   topology
	sender sender
}

func newTopology(l latency, s sender) topology { return topology{latency: l, sender: s} }

func newHost(t topology, s sender) *host { return &host{topo: t, sender: s} }

func TestExtract(t *testing.T) {
	bag := NewMagicBag()
	bag.Put(func() latency { return 2 })
	var l latency
	require.NoError(t, bag.Extract(&l))
	assert.Equal(t, latency(2), l)
}

func TestExtract_SharesValues(t *testing.T) {
	bag := NewMagicBag()
	bag.PutMany(
		func() latency { return 1 },
		func() sender { return &countingSender{} },
		newTopology,
		newHost,
	)
	var h *host
	require.NoError(t, bag.Extract(&h))
	assert.Equal(t, latency(1), h.topo.latency)
	h.sender.Send("n0")
	assert.Equal(t, 2, h.topo.sender.Send("n0"), "one sender for the whole graph")
}

func TestExtract_ModuleOverrides(t *testing.T) {
	bag := NewMagicBag()
	bag.Put(func() latency { return 1 })
	bag.InstallModule(moduleFunc(func(b *MagicBag) {
		b.Put(func() latency { return 3 })
	}))
	var l latency
	require.NoError(t, bag.Extract(&l))
	assert.Equal(t, latency(3), l)
}

type moduleFunc func(b *MagicBag)

func (f moduleFunc) Install(b *MagicBag) { f(b) }

func TestExtract_ProviderError(t *testing.T) {
	bag := NewMagicBag()
	bag.PutMany(
		func() (latency, error) { return 0, errors.New("no latency configured") },
		func() sender { return &countingSender{} },
		newTopology,
	)
	var topo topology
	err := bag.Extract(&topo)
	require.Error(t, err)
	ierr, ok := err.(*InjectionError)
	require.True(t, ok)
	assert.Len(t, ierr.Chain, 2)
	assert.Contains(t, err.Error(), "no latency configured")
}

func TestExtract_Unbound(t *testing.T) {
	bag := NewMagicBag()
	bag.Put(newTopology)
	var topo topology
	assert.Error(t, bag.Extract(&topo))
	assert.True(t, bag.Has(reflect.TypeOf(topology{})))
	assert.False(t, bag.Has(reflect.TypeOf(latency(0))))
}

type evener struct{ o *odder }
type odder struct{ e *evener }

func TestExtract_Cycle(t *testing.T) {
	bag := NewMagicBag()
	bag.PutMany(
		func(o *odder) *evener { return &evener{o} },
		func(e *evener) *odder { return &odder{e} },
	)
	var e *evener
	err := bag.Extract(&e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestPut_RejectsNonProviders(t *testing.T) {
	bag := NewMagicBag()
	assert.Panics(t, func() { bag.Put(3) })
	assert.Panics(t, func() { bag.Put(func() {}) })
	assert.Panics(t, func() { bag.Put(func() (latency, int) { return 0, 0 }) })
	assert.Panics(t, func() { bag.Put(func(...int) latency { return 0 }) })
}

func TestExtract_NeedsPointer(t *testing.T) {
	bag := NewMagicBag()
	bag.Put(func() latency { return 1 })
	var l latency
	assert.Error(t, bag.Extract(l))
}
