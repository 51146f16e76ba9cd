package session

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Data is the unit of stored session content: a string-keyed map of
// JSON-encoded values. Values stay encoded until a typed accessor asks for them.
type Data map[string]json.RawMessage

// Get returns the raw value stored under key.
func (d Data) Get(key string) (json.RawMessage, bool) {
	v, ok := d[key]
	return v, ok
}

// Set stores raw under key and returns the value it replaced, if any.
func (d Data) Set(key string, raw json.RawMessage) (json.RawMessage, bool) {
	prev, ok := d[key]
	d[key] = raw
	return prev, ok
}

// Remove deletes key and returns the removed value, if any.
func (d Data) Remove(key string) (json.RawMessage, bool) {
	prev, ok := d[key]
	if ok {
		delete(d, key)
	}
	return prev, ok
}

// Clear removes all entries.
func (d Data) Clear() {
	clear(d)
}

// Clone returns a deep copy. Raw values are copied so the clone never aliases
// buffers owned by the original.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = bytes.Clone(v)
	}
	return out
}

// Keys returns the keys in unspecified order.
func (d Data) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return keys
}

// MarshalJSON encodes the map as a JSON object. A nil map encodes as {}.
func (d Data) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]json.RawMessage(d))
}

// UnmarshalJSON decodes a JSON object into the map. JSON null yields an empty map.
func (d *Data) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m == nil {
		m = make(map[string]json.RawMessage)
	}
	*d = Data(m)
	return nil
}

// EncodeData serializes data for backends that persist raw bytes.
func EncodeData(d Data) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	return b, nil
}

// DecodeData is the inverse of EncodeData.
func DecodeData(b []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	return d, nil
}

// encodeValue converts v into its stored form.
func encodeValue(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	return b, nil
}

// decodeValue converts raw into T. It fails closed: on error the zero value
// and false are returned, never a partially decoded value.
func decodeValue[T any](raw json.RawMessage) (T, bool) {
	var v T
	if raw == nil {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
