package types

import "github.com/google/uuid"

// ParseID parses a resource id. Malformed ids cannot name a stored resource,
// so they are reported as not found.
func ParseID(kind, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, NotFound("%s %s", kind, id)
	}

	return parsed, nil
}
