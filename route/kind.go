package route

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind is the kind of component a route points at.
type Kind int

const (
	KindActivity Kind = iota
	KindService
	KindContentProvider
	KindBroadcast
	KindFragment
	KindProvider
	KindMethod
	KindUnknown
)

var kindNames = [...]string{
	KindActivity:        "activity",
	KindService:         "service",
	KindContentProvider: "content_provider",
	KindBroadcast:       "broadcast",
	KindFragment:        "fragment",
	KindProvider:        "provider",
	KindMethod:          "method",
	KindUnknown:         "unknown",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its Kind. Unrecognized names map to KindUnknown.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return KindUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// DataKind is the declared kind of a route parameter.
type DataKind int

const (
	DataBool DataKind = iota
	DataByte
	DataShort
	DataInt
	DataLong
	DataChar
	DataFloat
	DataDouble
	DataString
	DataAny
)

var dataKindNames = [...]string{
	DataBool:   "bool",
	DataByte:   "byte",
	DataShort:  "short",
	DataInt:    "int",
	DataLong:   "long",
	DataChar:   "char",
	DataFloat:  "float",
	DataDouble: "double",
	DataString: "string",
	DataAny:    "any",
}

func (d DataKind) String() string {
	if d < 0 || int(d) >= len(dataKindNames) {
		return "any"
	}
	return dataKindNames[d]
}

// ParseDataKind maps a name back to its DataKind. Unrecognized names map to DataAny.
func ParseDataKind(s string) DataKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range dataKindNames {
		if name == s {
			return DataKind(i)
		}
	}
	return DataAny
}

// Convert parses raw into the Go value for d. DataAny cannot be converted
// here; it needs a Serializer.
func (d DataKind) Convert(raw string) (any, error) {
	switch d {
	case DataBool:
		return strconv.ParseBool(raw)
	case DataByte:
		v, err := strconv.ParseInt(raw, 10, 8)
		return int8(v), err
	case DataShort:
		v, err := strconv.ParseInt(raw, 10, 16)
		return int16(v), err
	case DataInt:
		v, err := strconv.ParseInt(raw, 10, 32)
		return int32(v), err
	case DataLong:
		return strconv.ParseInt(raw, 10, 64)
	case DataChar:
		if utf8.RuneCountInString(raw) != 1 {
			return nil, fmt.Errorf("char parameter must be one character, got %q", raw)
		}
		r, _ := utf8.DecodeRuneInString(raw)
		return r, nil
	case DataFloat:
		v, err := strconv.ParseFloat(raw, 32)
		return float32(v), err
	case DataDouble:
		return strconv.ParseFloat(raw, 64)
	case DataString:
		return raw, nil
	case DataAny:
		return nil, fmt.Errorf("any parameter requires a serializer")
	default:
		return nil, fmt.Errorf("unsupported data kind %d", int(d))
	}
}
