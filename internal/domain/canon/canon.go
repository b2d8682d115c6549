// Package canon implements canonical JSON encoding shared by the policy
// engine (policy_hash), the approval store (args_hash), and the intent
// router (cache signature).
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal returns the canonical JSON encoding of v: UTF-8, object keys
// sorted at every depth, no insignificant whitespace, numbers preserved
// as their source lexeme where v was decoded with json.Number (see
// DecodeNumberPreserving). Map keys and struct field ordering from
// encoding/json are normalized by re-marshaling through a sorted
// intermediate representation.
func Marshal(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, fmt.Errorf("canon: normalize: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return out, nil
}

// DecodeNumberPreserving decodes JSON bytes into a generic value using
// json.Number for numeric literals, so Marshal can round-trip the source
// lexeme instead of re-formatting floats.
func DecodeNumberPreserving(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalize walks v and produces a structure with deterministic map key
// order by converting map[string]interface{} into orderedMap, which
// marshals its keys sorted.
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		om := orderedMap{keys: keys, values: make(map[string]interface{}, len(t))}
		for _, k := range keys {
			nv, err := normalize(t[k])
			if err != nil {
				return nil, err
			}
			om.values[k] = nv
		}
		return om, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			nv, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

// orderedMap marshals as a JSON object with keys written in a fixed,
// pre-sorted order, which encoding/json's native map handling cannot
// guarantee is stable across Go versions without re-sorting on every call.
type orderedMap struct {
	keys   []string
	values map[string]interface{}
}

func (o orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalArgs canonicalizes a tool-argument map for hashing. It first
// round-trips through json.Marshal/DecodeNumberPreserving so that
// json.Number values already present in args (as produced by an
// upstream decoder) keep their original lexeme.
func MarshalArgs(args map[string]interface{}) ([]byte, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal args: %w", err)
	}
	decoded, err := DecodeNumberPreserving(raw)
	if err != nil {
		return nil, fmt.Errorf("canon: decode args: %w", err)
	}
	return Marshal(decoded)
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data, the hashing
// step shared by policy_hash and args_hash once each has produced its
// canonical encoding. The intent cache signature hashes its canonical
// encoding with xxhash instead.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
