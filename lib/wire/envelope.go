// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "encoding/json"

// Properties is the property mapping attached to a command request.
type Properties map[string]any

// Envelope is a decoded command request.
type Envelope struct {
	// Command is the command name. Matched case-insensitively against
	// the registry. Empty when the document omits the field.
	Command string

	// Properties are the command arguments. Never nil after decoding.
	Properties Properties

	// Cast marks a fire-and-forget request: it is executed, but no
	// response is ever sent, even on failure.
	Cast bool
}

// envelopeDocument is the JSON shape of an inbound request.
type envelopeDocument struct {
	Command    string         `json:"command"`
	Properties map[string]any `json:"properties"`
	MsgType    string         `json:"msg_type"`
}

// DecodeEnvelope parses a raw message body into an Envelope. A missing
// properties field decodes as an empty map; any msg_type other than
// "cast" (including absence) means call semantics. Parse failures are
// returned as-is — the caller maps them to InvalidJSON.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var doc envelopeDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Envelope{}, err
	}
	properties := doc.Properties
	if properties == nil {
		properties = make(map[string]any)
	}
	return Envelope{
		Command:    doc.Command,
		Properties: properties,
		Cast:       doc.MsgType == "cast",
	}, nil
}
