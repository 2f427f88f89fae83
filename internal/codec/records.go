// Package codec is the wire form of dataset payloads. Numbers decode as
// json.Number, so ids keep every digit and a payload read back from the cache
// holds the same value types as one that was just normalized.
package codec

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mmcdole/tablesync/internal/domain"
)

// Encode marshals records. A nil slice encodes as an empty array.
func Encode(records []domain.Record) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return data, nil
}

// Decode unmarshals records, keeping numbers as json.Number.
func Decode(data []byte) ([]domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []domain.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

// Normalize passes records through Encode and Decode.
func Normalize(records []domain.Record) ([]domain.Record, error) {
	data, err := Encode(records)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
