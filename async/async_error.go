package async

// AsyncError is the eventual result of a function running on another
// goroutine. The producer completes it once with SetValue, the owning
// goroutine polls it with TryGetValue.
type AsyncError struct {
	result chan error
	done   bool
	err    error
}

func newAsyncError() *AsyncError {
	return &AsyncError{result: make(chan error, 1)}
}

// SetValue completes the AsyncError. Completing it twice panics.
func (e *AsyncError) SetValue(err error) {
	e.result <- err
	close(e.result)
}

// TryGetValue never blocks. Once it reported completion it keeps
// returning the same value.
func (e *AsyncError) TryGetValue() (bool, error) {
	if !e.done {
		select {
		case err := <-e.result:
			e.done, e.err = true, err
		default:
		}
	}
	return e.done, e.err
}
