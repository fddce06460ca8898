package survey

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// SessionHeader carries the session id alongside a response submission.
const SessionHeader = "X-Session-ID"

var (
	ErrNotObject      = errors.New("responses must be a json object")
	ErrNonStringValue = errors.New("response value must be a json-encoded string")
)

// ResponseMap holds raw answers keyed by question name, as collected by the renderer.
type ResponseMap map[string]any

// Clone returns a shallow copy so the persister never shares the collector's map.
func (m ResponseMap) Clone() ResponseMap {
	if m == nil {
		return nil
	}
	out := make(ResponseMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Answer is a single question/response pair in wire form.
type Answer struct {
	Question string
	Response string
}

// Responses is the wire form of a ResponseMap. Every response is the JSON
// encoding of the original answer, and the order follows the JSON object.
type Responses []Answer

// EncodeResponses re-encodes every answer as a JSON string. Keys are sorted.
func EncodeResponses(m ResponseMap) (Responses, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Responses, 0, len(keys))
	for _, k := range keys {
		encoded, err := json.Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("encode response %q: %w", k, err)
		}
		out = append(out, Answer{Question: k, Response: string(encoded)})
	}
	return out, nil
}

// Decode reverses EncodeResponses.
func (r Responses) Decode() (ResponseMap, error) {
	out := make(ResponseMap, len(r))
	for _, a := range r {
		var v any
		if err := json.Unmarshal([]byte(a.Response), &v); err != nil {
			return nil, fmt.Errorf("decode response %q: %w", a.Question, err)
		}
		out[a.Question] = v
	}
	return out, nil
}

// MarshalJSON writes the pairs as a JSON object in order.
func (r Responses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Question)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.Response)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string values, keeping key order.
// A repeated key keeps its first position and its last value.
func (r *Responses) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	out := make(Responses, 0)
	seen := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, ok := valTok.(string)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNonStringValue, key)
		}

		if idx, dup := seen[key]; dup {
			out[idx].Response = val
			continue
		}
		seen[key] = len(out)
		out = append(out, Answer{Question: key, Response: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = out
	return nil
}

// PersistResult is the body returned by the response endpoint on success.
type PersistResult struct {
	Success bool `json:"success"`
}
