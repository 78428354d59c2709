package async

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsyncError_Pending(t *testing.T) {
	e := newAsyncError()
	ok, err := e.TryGetValue()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestAsyncError_CompletedTwice(t *testing.T) {
	e := newAsyncError()
	e.SetValue(errors.New("connect refused"))

	for i := 0; i < 2; i++ {
		ok, err := e.TryGetValue()
		assert.True(t, ok)
		assert.EqualError(t, err, "connect refused")
	}
}

func TestAsyncError_SetValueTwicePanics(t *testing.T) {
	e := newAsyncError()
	e.SetValue(nil)
	assert.Panics(t, func() { e.SetValue(nil) })
}

func TestMailbox_CallbacksRunOnProcess(t *testing.T) {
	mailbox := NewMailbox()
	connected := map[string]bool{}
	for _, node := range []string{"n0", "n1", "n2"} {
		node := node
		go func(rsp *AsyncError) {
			if node == "n1" {
				rsp.SetValue(errors.New("unreachable"))
				return
			}
			rsp.SetValue(nil)
		}(mailbox.NewAsyncError(func(err error) { connected[node] = err == nil }))
	}

	deadline := time.Now().Add(time.Second)
	for mailbox.Count() > 0 && time.Now().Before(deadline) {
		mailbox.ProcessMessages()
	}
	assert.Equal(t, map[string]bool{"n0": true, "n1": false, "n2": true}, connected)
}

func TestRunner(t *testing.T) {
	runner := NewRunner()
	release := make(chan struct{})
	var got error
	done := false
	runner.RunAsync(func() error {
		<-release
		return errors.New("throttled")
	}, func(err error) {
		got = err
		done = true
	})

	runner.ProcessMessages()
	assert.False(t, done)
	assert.Equal(t, 1, runner.NumRunning())

	close(release)
	deadline := time.Now().Add(time.Second)
	for runner.NumRunning() > 0 && time.Now().Before(deadline) {
		runner.ProcessMessages()
	}
	assert.True(t, done)
	assert.EqualError(t, got, "throttled")
}

func TestMailbox_CallbackHandsOutMore(t *testing.T) {
	mailbox := NewMailbox()
	var order []string
	first := mailbox.NewAsyncError(func(error) {
		order = append(order, "first")
		mailbox.NewAsyncError(func(error) { order = append(order, "retry") }).SetValue(nil)
	})
	mailbox.NewAsyncError(func(error) { order = append(order, "second") })
	first.SetValue(nil)

	mailbox.ProcessMessages()
	assert.Equal(t, []string{"first"}, order)
	assert.Equal(t, 2, mailbox.Count())

	mailbox.ProcessMessages()
	assert.Equal(t, []string{"first", "retry"}, order)
	assert.Equal(t, 1, mailbox.Count())
}
