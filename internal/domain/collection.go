package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultCollectionID is used for ingestion and cost tracking when the
	// caller names no collection.
	DefaultCollectionID = "_default"

	// EphemeralPrefix marks throwaway collections built for a single answer.
	EphemeralPrefix = "_url_"
)

var collectionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Values that HTTP and form clients send when they mean "no collection".
var absentCollectionValues = map[string]struct{}{
	"":          {},
	"string":    {},
	"null":      {},
	"undefined": {},
	"none":      {},
}

// CleanCollectionID normalises a caller supplied collection id.
// Placeholder values yield "" with a nil error; anything else must match
// [A-Za-z0-9_-]{1,64}.
func CleanCollectionID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if _, ok := absentCollectionValues[strings.ToLower(id)]; ok {
		return "", nil
	}
	if err := ValidateCollectionID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateCollectionID checks that id is a usable collection id.
func ValidateCollectionID(id string) error {
	if !collectionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}

// CollectionOrDefault is CleanCollectionID with DefaultCollectionID substituted
// for an absent id.
func CollectionOrDefault(raw string) (string, error) {
	id, err := CleanCollectionID(raw)
	if err != nil {
		return "", err
	}
	if id == "" {
		return DefaultCollectionID, nil
	}
	return id, nil
}

// IsEphemeral reports whether id names a throwaway collection.
func IsEphemeral(id string) bool {
	return strings.HasPrefix(id, EphemeralPrefix)
}
