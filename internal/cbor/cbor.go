// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package cbor encodes configuration snapshots for the shared cache tier.
//
// CBOR Type Behavior:
//   - All integers convert to int64 when decoded into an interface
//   - float32 converts to float64
//   - []T slices inside maps convert to []any
//   - Maps decode as map[string]any (configured via DefaultMapType)
//   - string, bool, []byte, nil are preserved exactly
package cbor

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Config holds CBOR encoder and decoder modes.
type Config struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewConfig creates a configuration with canonical map ordering, so equal
// values always encode to equal bytes.
func NewConfig() (*Config, error) {
	encMode, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
		Time:          cbor.TimeRFC3339Nano,
		TimeTag:       cbor.EncTagNone,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any{}),
		UTF8:           cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &Config{
		encMode: encMode,
		decMode: decMode,
	}, nil
}

func (c *Config) NewEncoder(w io.Writer) *cbor.Encoder {
	return c.encMode.NewEncoder(w)
}

func (c *Config) NewDecoder(r io.Reader) *cbor.Decoder {
	return c.decMode.NewDecoder(r)
}

func (c *Config) Marshal(v any) ([]byte, error) {
	return c.encMode.Marshal(v)
}

func (c *Config) Unmarshal(data []byte, v any) error {
	return c.decMode.Unmarshal(data, v)
}

// Encode encodes a settings-shaped map.
func (c *Config) Encode(m map[string]any) ([]byte, error) {
	return c.encMode.Marshal(m)
}

// Decode decodes a settings-shaped map.
func (c *Config) Decode(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := c.decMode.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

// Normalize returns a copy of m with every nested map keyed by string.
func Normalize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = convertCBORTypes(v)
	}
	return out
}

func convertCBORTypes(value any) any {
	switch v := value.(type) {
	case []any:
		result := make([]any, len(v))
		for i, elem := range v {
			result[i] = convertCBORTypes(elem)
		}
		return result
	case map[string]any:
		return Normalize(v)
	case map[any]any:
		result := make(map[string]any, len(v))
		for k, elem := range v {
			result[fmt.Sprint(k)] = convertCBORTypes(elem)
		}
		return result
	default:
		return v
	}
}
