package wf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// enables future algorithm migration without ID collisions.
const (
	DomainFinding = "gatewright/finding/v1"
	DomainDrift   = "gatewright/drift/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte separator
// prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FindingFingerprint computes the content-addressed ID for a finding.
// Stable across scans: the same (locationRef, line, category) always
// yields the same fingerprint, which makes registration idempotent.
//
// Severity, description and decision are intentionally EXCLUDED: the
// fingerprint identifies WHERE and WHAT KIND of defect was seen, not
// how it was rated or what was decided about it.
func FindingFingerprint(locationRef string, line int, category string) (string, error) {
	obj := map[string]any{
		"location_ref": locationRef,
		"line":         line,
		"category":     category,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("finding fingerprint: %w", err)
	}
	return hashWithDomain(DomainFinding, canonical), nil
}

// DriftFingerprint computes the content-addressed ID for a drift
// record. One claim produces at most one drift record per run, so the
// claim reference alone identifies it.
func DriftFingerprint(claimRef string) (string, error) {
	obj := map[string]any{
		"claim_ref": claimRef,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("drift fingerprint: %w", err)
	}
	return hashWithDomain(DomainDrift, canonical), nil
}
