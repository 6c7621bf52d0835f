package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Well-known metadata keys written by leodock itself.
const (
	MetadataKeySource   = "source"
	MetadataKeyPriority = "priority"
)

// WithSource returns a copy of metadata carrying source under
// MetadataKeySource unless the caller already set one.
func WithSource(metadata map[string]string, source string) map[string]string {
	if _, ok := metadata[MetadataKeySource]; ok {
		return metadata
	}
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[MetadataKeySource] = source
	return out
}

// EncodeMetadata serializes metadata for the storage layer. Nil and empty
// maps are stored as NULL.
func EncodeMetadata(metadata map[string]string) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata")
	}
	return data, nil
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	metadata := map[string]string{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal metadata")
	}
	return metadata, nil
}

// EncodeParticipants serializes a participant set as a JSON array.
func EncodeParticipants(participants []string) ([]byte, error) {
	if participants == nil {
		participants = []string{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal participants")
	}
	return data, nil
}

func DecodeParticipants(data []byte) ([]string, error) {
	participants := []string{}
	if len(data) == 0 {
		return participants, nil
	}
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal participants")
	}
	return participants, nil
}
