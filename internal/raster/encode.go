package raster

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload is the wire form of a Dense layer, used for scene band blobs,
// stored results and API responses.
type Payload struct {
	Name   string    `json:"name" msgpack:"name"`
	Grid   Grid      `json:"grid" msgpack:"grid"`
	Values []float64 `json:"values" msgpack:"values"`
	Valid  []bool    `json:"valid" msgpack:"valid"`
}

// ToPayload converts an in-memory layer to its wire form.
func ToPayload(l Layer) (Payload, error) {
	d, ok := l.(*Dense)
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q (%T)", ErrForeignLayer, l.Name(), l)
	}
	return Payload{Name: d.name, Grid: d.grid, Values: d.values, Valid: d.valid}, nil
}

// Layer rebuilds a Dense layer from the payload.
func (p Payload) Layer() (*Dense, error) {
	return NewDense(p.Name, p.Grid, p.Values, p.Valid)
}

// Marshal encodes a layer as MessagePack. Identical layers always produce
// identical bytes.
func Marshal(l Layer) ([]byte, error) {
	p, err := ToPayload(l)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&p)
}

// Unmarshal decodes a MessagePack layer produced by Marshal.
func Unmarshal(b []byte) (*Dense, error) {
	var p Payload
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decoding layer: %w", err)
	}
	return p.Layer()
}
