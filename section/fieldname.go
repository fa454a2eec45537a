package section

import (
	"fmt"
	"strings"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
)

// shapePrefix maps a ShapeKind to the single-character field-name prefix
// FormatContext uses to recover it on the read side without a side-channel
// schema.
func shapePrefix(k format.ShapeKind) (byte, error) {
	switch k {
	case format.ShapeGlobalValue:
		return 'g', nil
	case format.ShapeLocalValue:
		return 'l', nil
	case format.ShapeGlobalArray:
		return 'G', nil
	case format.ShapeLocalArray:
		return 'L', nil
	case format.ShapeJoinedArray:
		return 'J', nil
	default:
		return 0, fmt.Errorf("%w: shape kind %v has no field-name prefix", errs.ErrUnsupportedFieldType, k)
	}
}

func prefixShape(c byte) (format.ShapeKind, error) {
	switch c {
	case 'g':
		return format.ShapeGlobalValue, nil
	case 'l':
		return format.ShapeLocalValue, nil
	case 'G':
		return format.ShapeGlobalArray, nil
	case 'L':
		return format.ShapeLocalArray, nil
	case 'J':
		return format.ShapeJoinedArray, nil
	default:
		return format.ShapeUnknown, fmt.Errorf("%w: unrecognized shape prefix %q", errs.ErrUnparseableFieldName, c)
	}
}

// EncodeFieldName produces the on-wire field name for a variable, encoding
// its shape kind as a one-character prefix and its operator/stats variant as
// a "+O"/"+MM" suffix.
//
// Examples: "Gtemperature" (global array, no operator, no stats),
// "Gtemperature+O" (operator), "Gtemperature+O+MM" (operator and stats).
func EncodeFieldName(name string, shape format.ShapeKind, hasOperator, hasStats bool) (string, error) {
	prefix, err := shapePrefix(shape)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(prefix)
	b.WriteString(name)
	if hasOperator {
		b.WriteString("+O")
	}
	if hasStats {
		b.WriteString("+MM")
	}

	return b.String(), nil
}

// ParsedFieldName is the decoded form of an on-wire field name.
type ParsedFieldName struct {
	Name        string
	Shape       format.ShapeKind
	HasOperator bool
	HasStats    bool
}

// ParseFieldName decodes an on-wire field name, strictly validating the
// shape prefix and any +O/+MM suffix sequence. Unrecognized suffix tokens,
// duplicated tokens, or a malformed ordering are rejected with
// ErrMalformedSuffix rather than silently accepted or ignored.
func ParseFieldName(encoded string) (ParsedFieldName, error) {
	if len(encoded) < 2 {
		return ParsedFieldName{}, fmt.Errorf("%w: field name %q too short", errs.ErrUnparseableFieldName, encoded)
	}

	shape, err := prefixShape(encoded[0])
	if err != nil {
		return ParsedFieldName{}, err
	}

	rest := encoded[1:]
	base := rest
	var suffixPart string
	if idx := strings.IndexByte(rest, '+'); idx >= 0 {
		base = rest[:idx]
		suffixPart = rest[idx:]
	}

	if base == "" {
		return ParsedFieldName{}, fmt.Errorf("%w: empty variable name in %q", errs.ErrUnparseableFieldName, encoded)
	}

	parsed := ParsedFieldName{Name: base, Shape: shape}
	if suffixPart == "" {
		return parsed, nil
	}

	tokens := strings.Split(suffixPart, "+")[1:] // leading "+" produces an empty first element
	seen := map[string]bool{}
	for _, tok := range tokens {
		switch tok {
		case "O":
			if seen["O"] {
				return ParsedFieldName{}, fmt.Errorf("%w: duplicate +O in %q", errs.ErrMalformedSuffix, encoded)
			}
			seen["O"] = true
			parsed.HasOperator = true
		case "MM":
			if seen["MM"] {
				return ParsedFieldName{}, fmt.Errorf("%w: duplicate +MM in %q", errs.ErrMalformedSuffix, encoded)
			}
			seen["MM"] = true
			parsed.HasStats = true
		default:
			return ParsedFieldName{}, fmt.Errorf("%w: unrecognized suffix token %q in %q", errs.ErrMalformedSuffix, tok, encoded)
		}
	}
	// Canonical ordering is O before MM; reject anything else so a
	// round-tripped EncodeFieldName output is the only accepted form.
	if parsed.HasOperator && parsed.HasStats && !strings.HasSuffix(encoded, "+O+MM") {
		return ParsedFieldName{}, fmt.Errorf("%w: non-canonical suffix order in %q", errs.ErrMalformedSuffix, encoded)
	}

	return parsed, nil
}
