// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is wrapped by every parse and compile error.
var ErrInvalidDocument = errors.New("rules: invalid document")

// Engine names an expression language.
type Engine string

const (
	EngineCEL  Engine = "cel"
	EngineExpr Engine = "expr"
)

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSONC
)

// Document is a parsed rule document. Auth and Encryption map path
// patterns to expressions.
type Document struct {
	Engine     Engine            `yaml:"engine" json:"engine"`
	Auth       map[string]string `yaml:"auth" json:"auth"`
	Encryption map[string]string `yaml:"encryption" json:"encryption"`
}

// Parse decodes a document in the given format. Unknown fields are
// rejected so a misspelled section does not silently drop rules.
func Parse(data []byte, format Format) (*Document, error) {
	var document Document
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&document); err != nil {
			return nil, fmt.Errorf("%w: parsing YAML: %v", ErrInvalidDocument, err)
		}
	case FormatJSONC:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&document); err != nil {
			return nil, fmt.Errorf("%w: parsing JSONC: %v", ErrInvalidDocument, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %d", ErrInvalidDocument, format)
	}
	if document.Engine == "" {
		document.Engine = EngineCEL
	}
	if err := document.Validate(); err != nil {
		return nil, err
	}
	return &document, nil
}

// ReadFile reads a document, choosing the format from the extension:
// .json and .jsonc are JSONC, anything else is YAML.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	format := FormatYAML
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		format = FormatJSONC
	}
	document, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return document, nil
}

// Validate checks the engine name and that no expression is empty.
func (d *Document) Validate() error {
	switch d.Engine {
	case EngineCEL, EngineExpr:
	default:
		return fmt.Errorf("%w: unknown engine %q (want %q or %q)", ErrInvalidDocument, d.Engine, EngineCEL, EngineExpr)
	}
	for pattern, expression := range d.Auth {
		if strings.TrimSpace(expression) == "" {
			return fmt.Errorf("%w: auth rule %s has an empty expression", ErrInvalidDocument, pattern)
		}
	}
	for pattern, expression := range d.Encryption {
		if strings.TrimSpace(expression) == "" {
			return fmt.Errorf("%w: encryption rule %s has an empty expression", ErrInvalidDocument, pattern)
		}
	}
	return nil
}
