package ledger

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/mosaicnetworks/forkchain/src/crypto"
)

/*
Preimages are written in the byte form of Python's json.dumps(obj,
sort_keys=True), so that hashes agree with nodes built on that encoder:

  - object keys in lexicographic order, ": " after a key, ", " between items
  - strings escaped to ASCII: \" \\ \b \f \n \r \t, any other byte outside
    0x20-0x7e as \u00xx, and characters above U+FFFF as a surrogate pair
  - heights and nonces as integers
  - timestamps as the shortest digits that round-trip, with ".0" when
    integral and exponent notation below 1e-4 or from 1e16 up
  - amounts like timestamps, except that integral amounts are integers
  - an unsigned transaction has "signature": null
*/

type preimageWriter struct {
	bytes.Buffer
	fields int
}

type preimage interface {
	writePreimage(w *preimageWriter)
}

// begin opens an object and returns the field count of the enclosing one,
// to be handed back to end.
func (w *preimageWriter) begin() int {
	w.WriteByte('{')
	outer := w.fields
	w.fields = 0
	return outer
}

func (w *preimageWriter) end(outer int) {
	w.WriteByte('}')
	w.fields = outer
}

func (w *preimageWriter) key(k string) {
	if w.fields > 0 {
		w.WriteString(", ")
	}
	w.fields++
	w.str(k)
	w.WriteString(": ")
}

func (w *preimageWriter) str(s string) {
	w.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"':
				w.WriteString(`\"`)
			case c == '\\':
				w.WriteString(`\\`)
			case c == '\b':
				w.WriteString(`\b`)
			case c == '\f':
				w.WriteString(`\f`)
			case c == '\n':
				w.WriteString(`\n`)
			case c == '\r':
				w.WriteString(`\r`)
			case c == '\t':
				w.WriteString(`\t`)
			case c < 0x20 || c == 0x7f:
				w.unicodeEscape(rune(c))
			default:
				w.WriteByte(c)
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if r >= 0x10000 {
			r1, r2 := utf16.EncodeRune(r)
			w.unicodeEscape(r1)
			w.unicodeEscape(r2)
		} else {
			w.unicodeEscape(r)
		}
		i += size
	}
	w.WriteByte('"')
}

func (w *preimageWriter) unicodeEscape(r rune) {
	const hex = "0123456789abcdef"
	w.WriteString(`\u`)
	w.WriteByte(hex[(r>>12)&0xf])
	w.WriteByte(hex[(r>>8)&0xf])
	w.WriteByte(hex[(r>>4)&0xf])
	w.WriteByte(hex[r&0xf])
}

func (w *preimageWriter) integer(i int64) {
	w.WriteString(strconv.FormatInt(i, 10))
}

func (w *preimageWriter) float(f float64) {
	w.WriteString(formatFloat(f))
}

func (w *preimageWriter) amount(f float64) {
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		w.WriteString(strconv.FormatFloat(f, 'f', 0, 64))
		return
	}
	w.float(f)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.IndexByte(s, '.') < 0 {
		s += ".0"
	}
	return s
}

type txPreimage struct {
	Amount    float64
	Receiver  string
	Sender    string
	Timestamp float64
}

func (p txPreimage) writePreimage(w *preimageWriter) {
	outer := w.begin()
	w.key("amount")
	w.amount(p.Amount)
	w.key("receiver")
	w.str(p.Receiver)
	w.key("sender")
	w.str(p.Sender)
	w.key("timestamp")
	w.float(p.Timestamp)
	w.end(outer)
}

// txWire is a transaction as it appears inside a block preimage.
type txWire struct {
	Amount    float64
	Hash      string
	Receiver  string
	Sender    string
	Signature *string
	Timestamp float64
}

func (p txWire) writePreimage(w *preimageWriter) {
	outer := w.begin()
	w.key("amount")
	w.amount(p.Amount)
	w.key("hash")
	w.str(p.Hash)
	w.key("receiver")
	w.str(p.Receiver)
	w.key("sender")
	w.str(p.Sender)
	w.key("signature")
	if p.Signature == nil {
		w.WriteString("null")
	} else {
		w.str(*p.Signature)
	}
	w.key("timestamp")
	w.float(p.Timestamp)
	w.end(outer)
}

type blockPreimage struct {
	Height       int
	Nonce        int64
	PrevHash     string
	Timestamp    float64
	Transactions []txWire
}

func (p blockPreimage) writePreimage(w *preimageWriter) {
	outer := w.begin()
	w.key("height")
	w.integer(int64(p.Height))
	w.key("nonce")
	w.integer(p.Nonce)
	w.key("prev_hash")
	w.str(p.PrevHash)
	w.key("timestamp")
	w.float(p.Timestamp)
	w.key("transactions")
	w.WriteByte('[')
	for i, tx := range p.Transactions {
		if i > 0 {
			w.WriteString(", ")
		}
		tx.writePreimage(w)
	}
	w.WriteByte(']')
	w.end(outer)
}

func canonicalEncode(p preimage) []byte {
	w := new(preimageWriter)
	p.writePreimage(w)
	return w.Bytes()
}

// canonicalHash hashes the canonical encoding of a preimage.
func canonicalHash(p preimage) string {
	return crypto.SHA256Hex(canonicalEncode(p))
}

// Timestamp converts t to the fractional unix seconds used in preimages.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Now returns the current time as fractional unix seconds.
func Now() float64 {
	return Timestamp(time.Now())
}
