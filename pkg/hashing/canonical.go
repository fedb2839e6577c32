package hashing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Canonical encoding
//
// The canonical form of a value is JSON text with the following rules. It is
// frozen: changing any rule changes every data hash and trace ID.
//
//   - No insignificant whitespace; separators are "," and ":".
//   - Object keys are sorted by code point (bytewise on UTF-8).
//   - Strings are ASCII-only. '"' and '\' are backslash-escaped, as are
//     \n \r \t \b \f. Every other rune outside 0x20..0x7e is written as a
//     lowercase \uXXXX escape, using a UTF-16 surrogate pair above U+FFFF.
//   - Integers are written in decimal.
//   - Floats use the shortest digits that round-trip. Values with a decimal
//     exponent in [-4, 16) are written in fixed notation and always carry a
//     fractional part ("1.0", "-0.0"); all others use exponent notation with
//     a sign and at least two exponent digits ("1e-07", "1.5e+16").
//   - NaN and infinities are rejected.
//   - nil maps and slices encode as {} and [].
//
// These rules reproduce the text produced by a sorted-key, ASCII-only
// JSON encoder that formats floats with their shortest repr, so hashes are
// stable across implementations.

// Canonicalize returns the canonical encoding of v.
func Canonicalize(v any) ([]byte, error) {
	e := &encoder{visiting: make(map[visitKey]struct{})}
	if err := e.encode("$", reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type visitKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

type encoder struct {
	buf      bytes.Buffer
	visiting map[visitKey]struct{}
}

var numberType = reflect.TypeOf(json.Number(""))

func (e *encoder) encode(path string, v reflect.Value) error {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	if v.Type() == numberType {
		return e.encodeNumber(path, json.Number(v.String()))
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		return e.encodeFloat(path, v.Float())

	case reflect.String:
		return e.encodeString(path, v.String())

	case reflect.Interface:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encode(path, v.Elem())

	case reflect.Pointer:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		key := visitKey{ptr: v.Pointer(), typ: v.Type()}
		if err := e.enter(path, key); err != nil {
			return err
		}
		defer delete(e.visiting, key)
		return e.encode(path, v.Elem())

	case reflect.Map:
		return e.encodeMap(path, v)

	case reflect.Slice:
		if v.IsNil() {
			e.buf.WriteString("[]")
			return nil
		}
		key := visitKey{ptr: v.Pointer(), len: v.Len(), typ: v.Type()}
		if err := e.enter(path, key); err != nil {
			return err
		}
		defer delete(e.visiting, key)
		return e.encodeList(path, v)

	case reflect.Array:
		return e.encodeList(path, v)

	default:
		return NewSerializationError(path, fmt.Sprintf("unsupported type %s", v.Type()))
	}
}

func (e *encoder) enter(path string, key visitKey) error {
	if _, ok := e.visiting[key]; ok {
		return NewSerializationError(path, "cyclic reference")
	}
	e.visiting[key] = struct{}{}
	return nil
}

func (e *encoder) encodeMap(path string, v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return NewSerializationError(path, fmt.Sprintf("unsupported map key type %s", v.Type().Key()))
	}
	if v.IsNil() {
		e.buf.WriteString("{}")
		return nil
	}

	key := visitKey{ptr: v.Pointer(), typ: v.Type()}
	if err := e.enter(path, key); err != nil {
		return err
	}
	defer delete(e.visiting, key)

	keys := v.MapKeys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	sort.Strings(names)

	e.buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(path, name); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		mk := reflect.ValueOf(name).Convert(v.Type().Key())
		if err := e.encode(path+"."+name, v.MapIndex(mk)); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *encoder) encodeList(path string, v reflect.Value) error {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(fmt.Sprintf("%s[%d]", path, i), v.Index(i)); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeNumber(path string, n json.Number) error {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			e.buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NewSerializationError(path, fmt.Sprintf("invalid number %q", s))
	}
	return e.encodeFloat(path, f)
}

func (e *encoder) encodeFloat(path string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NewSerializationError(path, fmt.Sprintf("non-finite float %v", f))
	}
	e.buf.WriteString(FormatFloat(f))
	return nil
}

// FormatFloat returns the canonical text of a finite float.
func FormatFloat(f float64) string {
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(fixed, '.') {
		fixed += ".0"
	}
	return fixed
}

func (e *encoder) encodeString(path string, s string) error {
	if !utf8.ValidString(s) {
		return NewSerializationError(path, "string is not valid UTF-8")
	}
	e.buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			e.buf.WriteString(`\"`)
		case '\\':
			e.buf.WriteString(`\\`)
		case '\n':
			e.buf.WriteString(`\n`)
		case '\r':
			e.buf.WriteString(`\r`)
		case '\t':
			e.buf.WriteString(`\t`)
		case '\b':
			e.buf.WriteString(`\b`)
		case '\f':
			e.buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				e.buf.WriteRune(r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(&e.buf, `\u%04x\u%04x`, hi, lo)
			default:
				fmt.Fprintf(&e.buf, `\u%04x`, r)
			}
		}
	}
	e.buf.WriteByte('"')
	return nil
}
