package async

// AsyncErrorResponseHandler receives the value of a completed AsyncError.
type AsyncErrorResponseHandler func(error)

type pending struct {
	result   *AsyncError
	callback AsyncErrorResponseHandler
}

// A Mailbox collects AsyncErrors handed out to goroutines and runs their
// callbacks on the goroutine that calls ProcessMessages:
//
//	mailbox := NewMailbox()
//	for _, node := range nodes {
//	  go func(node string, rsp *AsyncError) {
//	    rsp.SetValue(transport.Connect(ctx, node))
//	  }(node, mailbox.NewAsyncError(func(err error) { connected[node] = err == nil }))
//	}
//	for mailbox.Count() > 0 {
//	  mailbox.ProcessMessages()
//	}
//
// Mailboxes are not safe for concurrent use.
type Mailbox struct {
	waiting []pending
}

func NewMailbox() *Mailbox { return &Mailbox{} }

// Count is the number of AsyncErrors whose callback did not run yet.
func (bx *Mailbox) Count() int { return len(bx.waiting) }

// NewAsyncError hands out a pending AsyncError. cb runs on the first
// ProcessMessages after it completed.
func (bx *Mailbox) NewAsyncError(cb AsyncErrorResponseHandler) *AsyncError {
	p := pending{result: newAsyncError(), callback: cb}
	bx.waiting = append(bx.waiting, p)
	return p.result
}

// ProcessMessages runs the callbacks of completed AsyncErrors in the order
// they were handed out and drops them. Callbacks may hand out new
// AsyncErrors, those are first checked by the next call.
func (bx *Mailbox) ProcessMessages() {
	waiting := bx.waiting
	bx.waiting = nil
	var still []pending
	for _, p := range waiting {
		if done, err := p.result.TryGetValue(); done {
			p.callback(err)
			continue
		}
		still = append(still, p)
	}
	bx.waiting = append(still, bx.waiting...)
}
