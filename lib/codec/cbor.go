// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2).
var encMode cbor.EncMode

// decMode decodes standard CBOR into map[string]any for untyped
// targets. Duplicate map keys are rejected: a signed payload with two
// values for the same key would decode differently on different
// implementations.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// State trees only use string keys. The CBOR default for
		// any-typed maps is map[interface{}]interface{}, which path
		// lookups and encoding/json cannot handle.
		DefaultMapType:        reflect.TypeOf(map[string]any(nil)),
		DupMapKey:             cbor.DupMapKeyEnforcedAPF,
		TextUnmarshaler:       cbor.TextUnmarshalerTextString,
		IndefLength:           cbor.IndefLengthForbidden,
		DefaultByteStringType: reflect.TypeOf([]byte(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Normalize returns the value v decodes to after a canonical
// encode/decode round trip. Nil stays nil.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: normalizing %T: %w", v, err)
	}
	var normalized any
	if err := Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("codec: normalizing %T: %w", v, err)
	}
	return normalized, nil
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, used to delay decoding.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder that writes to w using the
// canonical encoding configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for the
// entire contents of data. The CLI uses it to print signed actions.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
