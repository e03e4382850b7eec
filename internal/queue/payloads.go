package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payloads form a tagged union keyed by job type. Raw JSON crosses the queue
// boundary; decoding happens here so handlers only ever see typed structs.

// ScanPayload triggers a library scan.
type ScanPayload struct {
	Manual bool `json:"manual,omitempty"`
}

// EnrichPayload drives metadata/artwork enrichment for one entity.
type EnrichPayload struct {
	EntityID     string `json:"entityId"`
	EntityType   string `json:"entityType"`
	Manual       bool   `json:"manual,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

// PublishPayload deploys selected artwork into the library layout.
type PublishPayload struct {
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
}

// SyncPayload notifies playback servers about library changes.
type SyncPayload struct {
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
}

// EncodePayload serializes a typed payload for storage.
func EncodePayload(payload any) (string, error) {
	if payload == nil {
		return "", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload deserializes a job's payload into the struct matching its
// type. Unknown job types are rejected at this boundary so handlers never see
// them.
func DecodePayload(job *Job) (any, error) {
	if job == nil {
		return nil, fmt.Errorf("decode payload: job is nil")
	}
	raw := strings.TrimSpace(job.Payload)
	if raw == "" {
		raw = "{}"
	}
	switch job.Type {
	case TypeScan:
		var p ScanPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return p, nil
	case TypeEnrich:
		var p EnrichPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		if p.EntityID == "" {
			return nil, fmt.Errorf("decode %s payload: entityId required", job.Type)
		}
		return p, nil
	case TypePublish:
		var p PublishPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		if p.EntityID == "" {
			return nil, fmt.Errorf("decode %s payload: entityId required", job.Type)
		}
		return p, nil
	case TypeSync:
		var p SyncPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown job type %q", job.Type)
	}
}
