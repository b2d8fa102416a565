package wf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingFingerprintDeterminism(t *testing.T) {
	id1, err := FindingFingerprint("app/views.py", 12, "non-centralized-logger")
	require.NoError(t, err)

	id2, err := FindingFingerprint("app/views.py", 12, "non-centralized-logger")
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "fingerprint must be deterministic")
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestFindingFingerprintChangesWithInput(t *testing.T) {
	id1, err := FindingFingerprint("app/views.py", 12, "non-centralized-logger")
	require.NoError(t, err)
	id2, err := FindingFingerprint("app/models.py", 12, "non-centralized-logger")
	require.NoError(t, err)
	id3, err := FindingFingerprint("app/views.py", 13, "non-centralized-logger")
	require.NoError(t, err)
	id4, err := FindingFingerprint("app/views.py", 12, "todo-comment")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2, "different location must change the fingerprint")
	assert.NotEqual(t, id1, id3, "different line must change the fingerprint")
	assert.NotEqual(t, id1, id4, "different category must change the fingerprint")
}

func TestDriftFingerprintDeterminism(t *testing.T) {
	id1, err := DriftFingerprint("docs/api.md#endpoint-users")
	require.NoError(t, err)
	id2, err := DriftFingerprint("docs/api.md#endpoint-users")
	require.NoError(t, err)
	id3, err := DriftFingerprint("docs/api.md#endpoint-orders")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestFingerprintDomainsDoNotCollide(t *testing.T) {
	// A finding and a drift built from the same underlying string must
	// have different IDs because of domain separation.
	findingID, err := FindingFingerprint("same-ref", 0, "c")
	require.NoError(t, err)
	driftID, err := DriftFingerprint("same-ref")
	require.NoError(t, err)

	assert.NotEqual(t, findingID, driftID)
}
