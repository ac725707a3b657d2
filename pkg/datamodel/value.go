// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datamodel

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "number":
		*k = KindNumber
	case "text":
		*k = KindText
	case "bool":
		*k = KindBool
	case "null":
		*k = KindNull
	default:
		return fmt.Errorf("unknown value kind %q", text)
	}
	return nil
}

// Value is a scalar inside the data payload of a log entry.
// It is exactly one of Number, Text, Bool or Null.
type Value struct {
	kind   Kind
	number float64
	text   string
	flag   bool
}

func Number(f float64) Value { return Value{kind: KindNumber, number: f} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

func Null() Value { return Value{} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsNumber() (float64, bool) { return v.number, v.kind == KindNumber }

func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

func (v Value) AsBool() (bool, bool) { return v.flag, v.kind == KindBool }

// String renders the value the way it appears in prompts and summaries
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		return "null"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.number)
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.flag)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty data value")
	}
	switch data[0] {
	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return fmt.Errorf("invalid data value %s", data)
		}
		*v = Null()
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{', '[':
		return fmt.Errorf("data values must be scalars, got %s", data)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("invalid data value %s: %w", data, err)
		}
		*v = Number(f)
	}
	return nil
}
