// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	// encMode uses Core Deterministic Encoding (RFC 8949 §4.2).
	encMode cbor.EncMode

	// decMode decodes untyped maps as map[string]any so decoded
	// frames interoperate with encoding/json.
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}

	options := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Recordings can be replayed from untrusted files; bound nesting.
		MaxNestedLevels: 64,
	}
	decMode, err = options.DecMode()
	if err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes a CBOR sequence.
type Encoder = cbor.Encoder

// Decoder reads a CBOR sequence.
type Decoder = cbor.Decoder

// NewEncoder returns a deterministic sequence encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a sequence decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the RFC 8949 diagnostic notation for data. The
// replay tool prints it with --diagnose.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

// RawMessage is an undecoded CBOR item.
type RawMessage = cbor.RawMessage
