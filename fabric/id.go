package fabric

import uuid "github.com/nu7hatch/gouuid"

// NewID returns a fresh identifier for frames, distributed payloads and
// barriers.
func NewID() string {
	id, err := uuid.NewV4()
	for err != nil {
		id, err = uuid.NewV4()
	}
	return id.String()
}
