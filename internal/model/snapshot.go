package model

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the point-in-time entity state sealed inside a commit.
//
// JSON form:
//
//	{"<entityType>": {"<entityId|main>": <afterData|null>}, "timestamp": <ms>}
type Snapshot struct {
	Timestamp int64
	Entities  map[EntityType]map[string]Payload
}

// NewSnapshot builds the snapshot of a change's afterData.
func NewSnapshot(timestamp int64, changes ...Change) Snapshot {
	s := Snapshot{
		Timestamp: timestamp,
		Entities:  make(map[EntityType]map[string]Payload),
	}
	for _, ch := range changes {
		s.Put(ch.EntityType, ch.EntityID, ch.AfterData)
	}
	return s
}

// Put records the state of one entity. A nil payload records a deletion.
func (s *Snapshot) Put(entityType EntityType, entityID string, p Payload) {
	if s.Entities == nil {
		s.Entities = make(map[EntityType]map[string]Payload)
	}
	byID, ok := s.Entities[entityType]
	if !ok {
		byID = make(map[string]Payload)
		s.Entities[entityType] = byID
	}
	byID[entityID] = p
}

// Get returns the recorded state of one entity.
// The boolean is false when the snapshot says nothing about the entity;
// a recorded deletion returns (nil, true).
func (s Snapshot) Get(entityType EntityType, entityID string) (Payload, bool) {
	byID, ok := s.Entities[entityType]
	if !ok {
		return nil, false
	}
	p, ok := byID[entityID]
	return p, ok
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(s.Entities)+1)
	for et, byID := range s.Entities {
		inner := make(map[string]any, len(byID))
		for id, p := range byID {
			inner[id] = payloadValue(p)
		}
		obj[string(et)] = inner
	}
	obj["timestamp"] = s.Timestamp
	return json.Marshal(obj)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	out := Snapshot{Entities: make(map[EntityType]map[string]Payload)}
	for key, value := range raw {
		if key == "timestamp" {
			if err := json.Unmarshal(value, &out.Timestamp); err != nil {
				return fmt.Errorf("snapshot timestamp: %w", err)
			}
			continue
		}

		et := EntityType(key)
		if !et.Valid() {
			return fmt.Errorf("snapshot: unknown entity type %q", key)
		}
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(value, &byID); err != nil {
			return fmt.Errorf("snapshot %s: %w", key, err)
		}
		for id, rawPayload := range byID {
			p, err := DecodePayload(et, rawPayload)
			if err != nil {
				return fmt.Errorf("snapshot %s/%s: %w", key, id, err)
			}
			out.Put(et, id, p)
		}
	}

	*s = out
	return nil
}
