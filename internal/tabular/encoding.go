package tabular

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names reported in Result.Encoding.
const (
	EncodingUTF8BOM     = "utf-8-bom"
	EncodingUTF16       = "utf-16"
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	EncodingLatin1      = "iso-8859-1"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

type candidate struct {
	decode func([]byte) (string, bool)
	name   string
	// validated candidates only succeed on well-formed input, so a
	// literal U+FFFD in their output is data, not a decoding artifact.
	validated bool
}

// candidates are tried in order; the first clean decode wins.
var candidates = []candidate{
	{name: EncodingUTF8BOM, validated: true, decode: func(raw []byte) (string, bool) {
		if !bytes.HasPrefix(raw, bomUTF8) || !utf8.Valid(raw[len(bomUTF8):]) {
			return "", false
		}
		return string(raw[len(bomUTF8):]), true
	}},
	{name: EncodingUTF16, decode: func(raw []byte) (string, bool) {
		if !bytes.HasPrefix(raw, bomUTF16LE) && !bytes.HasPrefix(raw, bomUTF16BE) {
			return "", false
		}
		// ExpectBOM picks endianness from the mark and strips it.
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	}},
	{name: EncodingUTF8, validated: true, decode: func(raw []byte) (string, bool) {
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}},
	{name: EncodingWindows1252, decode: func(raw []byte) (string, bool) {
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	}},
	{name: EncodingLatin1, decode: func(raw []byte) (string, bool) {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	}},
}

// decode returns raw as text along with the name of the encoding that
// produced it. Any candidate is rejected when its output contains NUL;
// candidates that do not validate their input are also rejected when it
// contains the replacement character.
func decode(raw []byte) (string, string, error) {
	for _, c := range candidates {
		text, ok := c.decode(raw)
		if !ok || strings.ContainsRune(text, 0) {
			continue
		}
		if !c.validated && strings.ContainsRune(text, utf8.RuneError) {
			continue
		}
		return text, c.name, nil
	}
	return "", "", ErrEncoding
}
