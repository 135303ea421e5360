/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Payload is a string-keyed mapping that remembers the insertion order of its keys.
// It is not safe for concurrent use.
type Payload struct {
	keys   []string
	values map[string]interface{}
}

// NewPayload creates an empty Payload.
func NewPayload() *Payload {
	return &Payload{values: make(map[string]interface{})}
}

// Set adds or replaces the value. A replaced key keeps its original position.
func (p *Payload) Set(key string, value interface{}) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key.
func (p *Payload) Get(key string) (interface{}, bool) {
	v, ok := p.values[key]
	return v, ok
}

// GetString returns the value converted to a string, or "" when absent or not convertible.
func (p *Payload) GetString(key string) string {
	return cast.ToString(p.values[key])
}

// GetInt returns the value converted to an int.
func (p *Payload) GetInt(key string) (int, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, fmt.Errorf("%q is not set", key)
	}
	return cast.ToIntE(v)
}

// Delete removes the key.
func (p *Payload) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Payload) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of keys.
func (p *Payload) Len() int {
	return len(p.keys)
}

// Clone returns a shallow copy.
func (p *Payload) Clone() *Payload {
	c := &Payload{keys: append([]string(nil), p.keys...), values: make(map[string]interface{}, len(p.values))}
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON encodes the payload as a JSON object preserving the key order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := p.writeFields(&buf, nil); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object. Nested values are decoded the way encoding/json decodes into interface{}.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("payload must be a JSON object")
	}
	p.keys = nil
	p.values = make(map[string]interface{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var value interface{}
		if err = dec.Decode(&value); err != nil {
			return err
		}
		p.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// writeFields writes "key":value pairs without braces, skipping the keys in skip.
func (p *Payload) writeFields(buf *bytes.Buffer, skip map[string]bool) error {
	first := true
	for _, key := range p.keys {
		if skip[key] {
			continue
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return err
		}
		valueJSON, err := json.Marshal(p.values[key])
		if err != nil {
			return fmt.Errorf("marshal %q: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(valueJSON)
	}
	return nil
}
