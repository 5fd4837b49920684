package erpnext

import (
	"encoding/json"
)

// The backend wraps results inconsistently: RPC methods answer under
// "message", resource endpoints under "data", some methods return bare
// arrays, and a few wrap lists one level deeper ("profiles",
// "customers"). All of that shape probing lives in this file; callers
// receive one canonical payload.

// envelope is the outer response wrapper.
type envelope struct {
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// unwrap returns the meaningful payload of a response body: the
// "message" field when present, else "data", else the body itself.
func unwrap(body []byte) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if len(env.Message) > 0 && !isNull(env.Message) {
		return env.Message
	}
	if len(env.Data) > 0 && !isNull(env.Data) {
		return env.Data
	}
	return body
}

// asList coerces a payload to a JSON array. A bare array passes
// through; an object is probed for the given keys in order. Anything
// else yields an empty list.
func asList(raw json.RawMessage, keys ...string) json.RawMessage {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return raw
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return json.RawMessage("[]")
	}
	for _, key := range keys {
		if inner, ok := obj[key]; ok {
			nested := trimLeadingSpace(inner)
			if len(nested) > 0 && nested[0] == '[' {
				return inner
			}
		}
	}
	return json.RawMessage("[]")
}

// remoteMessage extracts a human-readable error from a failure body.
func remoteMessage(body []byte, fallback string) string {
	var probe struct {
		Message      string `json:"message"`
		Exception    string `json:"exception"`
		ErrorMessage string `json:"_error_message"`
	}
	if err := json.Unmarshal(body, &probe); err == nil {
		switch {
		case probe.Message != "":
			return probe.Message
		case probe.ErrorMessage != "":
			return probe.ErrorMessage
		case probe.Exception != "":
			return probe.Exception
		}
	}
	if fallback != "" {
		return fallback
	}
	return string(body)
}

func isNull(raw json.RawMessage) bool {
	return string(trimLeadingSpace(raw)) == "null"
}

func trimLeadingSpace(raw json.RawMessage) json.RawMessage {
	i := 0
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n' || raw[i] == '\r') {
		i++
	}
	return raw[i:]
}
