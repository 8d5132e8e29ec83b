package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/tally/internal/model"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// A nil payload is stored as SQL NULL.
func marshalPayload(p model.Payload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := model.MarshalCanonical(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal %s payload: %w", p.EntityType(), err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalPayload parses stored JSON back into the payload variant for
// entityType. SQL NULL decodes to a nil payload.
func unmarshalPayload(entityType model.EntityType, data sql.NullString) (model.Payload, error) {
	if !data.Valid {
		return nil, nil
	}
	return model.DecodePayload(entityType, []byte(data.String))
}
