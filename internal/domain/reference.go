package domain

import (
	"crypto/sha256"
	"encoding/base32"
	"regexp"

	"github.com/google/uuid"
)

const ReferencePrefix = "TX-"

var referencePattern = regexp.MustCompile(`^TX-[A-Z0-9]{8}$`)

// NewReference derives the caller-facing reference from the full transaction
// ID. The 8 characters carry 40 bits of the ID's SHA-256 digest; stores
// enforce uniqueness and callers regenerate on collision.
func NewReference(id uuid.UUID) string {
	sum := sha256.Sum256(id[:])
	return ReferencePrefix + base32.StdEncoding.EncodeToString(sum[:5])
}

func ValidReference(reference string) bool {
	return referencePattern.MatchString(reference)
}
