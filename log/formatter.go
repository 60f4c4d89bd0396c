package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// AppendBeginMarker starts a JSON object.
func AppendBeginMarker(buf *bytes.Buffer) {
	buf.WriteByte('{')
}

// AppendEndMarker closes a JSON object.
func AppendEndMarker(buf *bytes.Buffer) {
	buf.WriteByte('}')
}

// AppendLineBreak terminates a log line.
func AppendLineBreak(buf *bytes.Buffer) {
	buf.WriteByte('\n')
}

// AppendKey writes `"key":`, preceded by a comma unless it is the first field of the object.
func AppendKey(buf *bytes.Buffer, key string) {
	if buf.Len() >= 1 && buf.Bytes()[buf.Len()-1] != '{' {
		buf.WriteByte(',')
	}
	AppendString(buf, key)
	buf.WriteByte(':')
}

// AppendNil writes a JSON null.
func AppendNil(buf *bytes.Buffer) {
	buf.WriteString("null")
}

// AppendBool writes true or false.
func AppendBool(buf *bytes.Buffer, val bool) {
	buf.WriteString(strconv.FormatBool(val))
}

// AppendInt writes a base-10 integer.
func AppendInt(buf *bytes.Buffer, val int) {
	buf.WriteString(strconv.Itoa(val))
}

// AppendInt64 writes a base-10 integer.
func AppendInt64(buf *bytes.Buffer, val int64) {
	buf.WriteString(strconv.FormatInt(val, 10))
}

// AppendUint64 writes a base-10 unsigned integer.
func AppendUint64(buf *bytes.Buffer, val uint64) {
	buf.WriteString(strconv.FormatUint(val, 10))
}

// AppendFloat64 writes a float. NaN and infinities are written as strings
// so the line stays valid JSON.
func AppendFloat64(buf *bytes.Buffer, val float64) {
	switch {
	case math.IsNaN(val):
		buf.WriteString(`"NaN"`)
	case math.IsInf(val, 1):
		buf.WriteString(`"+Inf"`)
	case math.IsInf(val, -1):
		buf.WriteString(`"-Inf"`)
	default:
		buf.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	}
}

// AppendFloat64s writes a JSON array of floats.
func AppendFloat64s(buf *bytes.Buffer, vals []float64) {
	buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		AppendFloat64(buf, v)
	}
	buf.WriteByte(']')
}

// AppendTime writes t as a quoted `2006-01-02 15:04:05.000` timestamp.
func AppendTime(buf *bytes.Buffer, t time.Time) {
	var tmp [32]byte
	buf.WriteByte('"')
	buf.Write(t.AppendFormat(tmp[:0], "2006-01-02 15:04:05.000"))
	buf.WriteByte('"')
}

// AppendInterface marshals i with encoding/json.
func AppendInterface(buf *bytes.Buffer, i any) {
	marshaled, err := json.Marshal(i)
	if err != nil {
		AppendString(buf, fmt.Sprintf("marshaling error: %v", err))
		return
	}
	buf.Write(marshaled)
}

const _hex = "0123456789abcdef"

var _noEscapeTable = [256]bool{}

func init() {
	for i := 0; i <= 0x7e; i++ {
		_noEscapeTable[i] = i >= 0x20 && i != '\\' && i != '"'
	}
}

// AppendStrings writes a JSON array of strings.
func AppendStrings(buf *bytes.Buffer, vals []string) {
	buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		AppendString(buf, v)
	}
	buf.WriteByte(']')
}

// AppendString writes s as a quoted JSON string.
// Strings that need no escaping are copied in one write.
func AppendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if !_noEscapeTable[s[i]] {
			appendStringComplex(buf, s)
			buf.WriteByte('"')
			return
		}
	}
	buf.WriteString(s)
	buf.WriteByte('"')
}

func appendStringComplex(buf *bytes.Buffer, s string) {
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				if start < i {
					buf.WriteString(s[start:i])
				}
				buf.WriteString(`�`)
				start = i + 1
				continue
			}
			i += size - 1
			continue
		}

		if _noEscapeTable[b] {
			continue
		}

		if start < i {
			buf.WriteString(s[start:i])
		}
		switch b {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(_hex[b>>4])
			buf.WriteByte(_hex[b&0xF])
		}
		start = i + 1
	}
	if start < len(s) {
		buf.WriteString(s[start:])
	}
}
