// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peerstate/peerstate/lib/peerstate"
)

// parseValue decodes a JSON value given on the command line. Integral
// numbers stay integers so they encode as CBOR integers.
func parseValue(text string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("parsing value as JSON: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing value as JSON: trailing data after %q", text)
	}
	return numbers(value)
}

func numbers(value any) (any, error) {
	switch v := value.(type) {
	case json.Number:
		if integer, err := v.Int64(); err == nil {
			return integer, nil
		}
		return v.Float64()
	case map[string]any:
		for key, child := range v {
			converted, err := numbers(child)
			if err != nil {
				return nil, err
			}
			v[key] = converted
		}
		return v, nil
	case []any:
		for i, child := range v {
			converted, err := numbers(child)
			if err != nil {
				return nil, err
			}
			v[i] = converted
		}
		return v, nil
	default:
		return value, nil
	}
}

// sealedView is how a value this peer cannot decrypt is printed.
type sealedView struct {
	Group      string   `json:"group"`
	Recipients []string `json:"recipients"`
}

// renderable replaces sealed values with a description of their
// audience so the tree can be printed as JSON.
func renderable(value any) any {
	switch v := value.(type) {
	case *peerstate.Encrypted:
		recipients := make([]string, len(v.Recipients))
		for i, recipient := range v.Recipients {
			recipients[i] = string(recipient)
		}
		return map[string]any{"sealed": sealedView{Group: v.Group, Recipients: recipients}}
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = renderable(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = renderable(child)
		}
		return out
	default:
		return value
	}
}

// writeJSON prints value as JSON, indented unless compact.
func writeJSON(w io.Writer, value any, compact bool) error {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(renderable(value)); err != nil {
		return err
	}
	_, err := w.Write(buffer.Bytes())
	return err
}
