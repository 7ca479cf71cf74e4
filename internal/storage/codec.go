package storage

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/containergeometry/internal/geometry"
)

// payload is the part of a run stored as one opaque blob
type payload struct {
	Params       geometry.Params        `json:"params"`
	Measurements []geometry.Measurement `json:"measurements"`
	Result       *geometry.Result       `json:"result"`
}

// EncodePayload serializes the parameters, measurements and result of r with
// msgpack, reusing the JSON field names
func EncodePayload(r *Run) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(payload{Params: r.Params, Measurements: r.Measurements, Result: r.Result}); err != nil {
		return nil, fmt.Errorf("could not encode run %s: %w", r.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodePayload fills the parameters, measurements and result of r from b
func DecodePayload(b []byte, r *Run) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")

	var p payload
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("could not decode run %s: %w", r.ID, err)
	}
	r.Params, r.Measurements, r.Result = p.Params, p.Measurements, p.Result
	return nil
}
