package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainFormulaSet = "formulary/formula-set/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FormulaSetFingerprint identifies the ordered list of active formulas a pass applied.
//
// Only field name and expression text of active formulas contribute, in order:
// two registries that would compute identical values share a fingerprint even if
// formula IDs, units, or inactive rows differ.
func FormulaSetFingerprint(formulas []FormulaDefinition) (string, error) {
	items := make([]any, 0, len(formulas))
	for _, f := range formulas {
		if !f.IsActive {
			continue
		}
		items = append(items, map[string]any{
			"field_name": f.FieldName,
			"expression": f.Expression,
		})
	}

	canonical, err := MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("FormulaSetFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFormulaSet, canonical), nil
}

// MustFormulaSetFingerprint is like FormulaSetFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFormulaSetFingerprint(formulas []FormulaDefinition) string {
	fp, err := FormulaSetFingerprint(formulas)
	if err != nil {
		panic(err)
	}
	return fp
}
