package overlay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/utils"
)

var (
	ErrBrokenLink = errors.New("receipt chain broken")
	ErrTampered   = errors.New("receipt content modified")
)

// ChainError reports the first receipt that failed verification.
type ChainError struct {
	Position int
	ID       string
	Expected string
	Found    string
	Err      error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("receipt %d (%s): %v: expected %s, found %s",
		e.Position, e.ID, e.Err, short(e.Expected), short(e.Found))
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// ReceiptHash computes the integrity hash of payload chained to previous.
func ReceiptHash(payload json.RawMessage, previous string) (string, error) {
	canon, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	return utils.ChainedHash(canon, previous), nil
}

// VerifyChain checks that receipts form an unbroken chain starting at the genesis
// hash and that every integrity hash matches its payload.
func VerifyChain(receipts []model.SecureReceipt) error {
	prev := utils.GenesisHash
	for i := range receipts {
		r := &receipts[i]
		if r.PreviousHash != prev {
			return &ChainError{
				Position: i, ID: r.ID, Expected: prev, Found: r.PreviousHash,
				Err: ErrBrokenLink,
			}
		}
		h, err := ReceiptHash(r.Payload, prev)
		if err != nil {
			return fmt.Errorf("receipt %d (%s): %w", i, r.ID, err)
		}
		if h != r.IntegrityHash {
			return &ChainError{
				Position: i, ID: r.ID, Expected: h, Found: r.IntegrityHash,
				Err: ErrTampered,
			}
		}
		prev = r.IntegrityHash
	}
	return nil
}

// Canonical re-encodes a json document with sorted object keys, ", " and ": "
// separators and ASCII only strings. Number literals are kept as they are.
// This is the form the analysis service hashes.
func Canonical(doc json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical form: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeString(buf, k)
			buf.WriteString(": ")
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical form: unsupported type %T", v)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r < 0x20 || (r > 0x7f && r < 0x10000):
			fmt.Fprintf(buf, `\u%04x`, r)
		case r >= 0x10000:
			r1, r2 := utf16Pair(r)
			fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

func utf16Pair(r rune) (high, low rune) {
	r -= 0x10000
	return 0xd800 + (r>>10)&0x3ff, 0xdc00 + r&0x3ff
}

func short(h string) string {
	if len(h) > 16 {
		return strings.ToLower(h[:16]) + "..."
	}
	return h
}
