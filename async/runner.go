// Package async runs blocking work off the control goroutine and hands
// the results back to it as callbacks.
package async

// A Runner runs each function on its own goroutine and its callback on
// the goroutine calling ProcessMessages. The server loop waits on the
// frame rate limiter this way:
//
//	runner.RunAsync(func() error { return limiter.Wait(ctx) }, func(err error) {
//	  if err == nil {
//	    startFrame()
//	  }
//	})
//
//	// every loop iteration
//	runner.ProcessMessages()
type Runner struct {
	mailbox *Mailbox
}

func NewRunner() Runner { return Runner{mailbox: NewMailbox()} }

// NumRunning counts the functions whose callback did not run yet.
func (r *Runner) NumRunning() int { return r.mailbox.Count() }

// RunAsync starts f. Its result reaches cb on the first ProcessMessages
// after f returned.
func (r *Runner) RunAsync(f func() error, cb AsyncErrorResponseHandler) {
	rsp := r.mailbox.NewAsyncError(cb)
	go func() { rsp.SetValue(f()) }()
}

// ProcessMessages delivers the results of finished functions.
func (r *Runner) ProcessMessages() { r.mailbox.ProcessMessages() }
