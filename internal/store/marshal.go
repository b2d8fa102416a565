package store

import (
	"fmt"

	"github.com/roach88/gatewright/internal/wf"
)

// marshalPayload converts an entry payload to canonical JSON TEXT for
// storage. Canonical serialization is what makes replay byte-stable:
// the same payload always stores as the same bytes.
func marshalPayload(payload any) (string, error) {
	data, err := wf.MarshalCanonicalValue(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}
