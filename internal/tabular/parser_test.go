package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/joshsymonds/advisor/pkg/logger"
)

func newParser(opts Options) (*Parser, *logger.MockLogger) {
	log := logger.NewMockLogger()
	return New(opts, log), log
}

func TestParseDelimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		delim rune
	}{
		{"comma", "Category,Recommendation\ncost,Resize VM\n", ','},
		{"semicolon", "Category;Recommendation\ncost;Resize VM\n", ';'},
		{"tab", "Category\tRecommendation\ncost\tResize VM\n", '\t'},
		{"pipe", "Category|Recommendation\ncost|Resize VM\n", '|'},
		{"quoted comma in semicolon file", "\"Category, main\";Recommendation\ncost;Resize VM\n", ';'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newParser(Options{})
			res, err := p.Parse([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.delim, res.Delimiter)
			require.Len(t, res.Rows, 1)
			assert.Equal(t, "Resize VM", res.Rows[0].Get("Recommendation"))
			assert.Equal(t, 2, res.Rows[0].Line)
		})
	}
}

func TestParseQuoting(t *testing.T) {
	input := "Category,Recommendation,Benefits\n" +
		"cost,\"Buy reserved instances, 3 years\",\"Saves \"\"a lot\"\"\"\n"

	p, _ := newParser(Options{})
	res, err := p.Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, "Buy reserved instances, 3 years", row.Get("Recommendation"))
	assert.Equal(t, `Saves "a lot"`, row.Get("Benefits"))
	assert.False(t, res.Lenient)
}

func TestParseMalformedRowBecomesWarning(t *testing.T) {
	input := "Category,Impact,Recommendation\n" +
		"cost,High,Right-size VM\n" +
		"security,Medium\n" +
		"reliability,Low,Enable backups\n" +
		"cost,Low,Delete idle disk\n"

	p, _ := newParser(Options{})
	res, err := p.Parse([]byte(input))
	require.NoError(t, err)

	assert.Len(t, res.Rows, 3)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 3, res.Warnings[0].Line)
	assert.Contains(t, res.Warnings[0].Reason, "expected 3 fields, got 2")
	assert.Equal(t, "line 3: expected 3 fields, got 2", res.Warnings[0].String())
}

func TestParseFallsBackToLenient(t *testing.T) {
	input := "Category,Recommendation\n" +
		"cost,Use 5\" disks\n" +
		"security,Enable MFA\n"

	p, log := newParser(Options{})
	res, err := p.Parse([]byte(input))
	require.NoError(t, err)

	assert.True(t, res.Lenient)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, `Use 5" disks`, res.Rows[0].Get("Recommendation"))
	assert.True(t, log.HasMessage("WARN", "Strict parse failed, retrying leniently"))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 2, res.Warnings[0].Line)
	assert.Contains(t, res.Warnings[0].Reason, "repaired malformed quoting")
	assert.True(t, res.Warnings[0].Repaired)
}

func TestParseLenientRepairIsReportedOnce(t *testing.T) {
	input := "a,b,c\n" +
		"1,2,3\n" +
		"4,x \"y\" z,6\n" +
		"7,8,9\n"

	p, _ := newParser(Options{})
	res, err := p.Parse([]byte(input))
	require.NoError(t, err)

	assert.True(t, res.Lenient)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, `x "y" z`, res.Rows[1].Get("b"))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 3, res.Warnings[0].Line)
	assert.True(t, res.Warnings[0].Repaired)
}

func TestParseEncodings(t *testing.T) {
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().
		Bytes([]byte("Category,Recommendation\ncost,Réserver\n"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		want     string
		encoding string
		raw      []byte
	}{
		{
			name:     "utf-8 with bom",
			raw:      append([]byte{0xEF, 0xBB, 0xBF}, []byte("Category,Recommendation\ncost,Réserver\n")...),
			want:     "Réserver",
			encoding: EncodingUTF8BOM,
		},
		{
			name:     "utf-16 with bom",
			raw:      utf16,
			want:     "Réserver",
			encoding: EncodingUTF16,
		},
		{
			name:     "plain utf-8",
			raw:      []byte("Category,Recommendation\ncost,Réserver\n"),
			want:     "Réserver",
			encoding: EncodingUTF8,
		},
		{
			name:     "utf-8 containing a literal replacement character",
			raw:      []byte("Category,Recommendation\ncost,\xef\xbf\xbd café\n"),
			want:     "\ufffd café",
			encoding: EncodingUTF8,
		},
		{
			name:     "windows-1252 euro sign",
			raw:      []byte("Category,Recommendation\ncost,Save \x80100\n"),
			want:     "Save €100",
			encoding: EncodingWindows1252,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newParser(Options{})
			res, err := p.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, res.Encoding)
			assert.Equal(t, []string{"Category", "Recommendation"}, res.Headers)
			require.Len(t, res.Rows, 1)
			assert.Equal(t, tt.want, res.Rows[0].Get("Recommendation"))
		})
	}
}

func TestParseEncodingFailure(t *testing.T) {
	// UTF-16 without a byte order mark decodes to NUL-laden text everywhere.
	raw := []byte{'C', 0, 'a', 0, 't', 0, '\n', 0}
	p, _ := newParser(Options{})
	_, err := p.Parse(raw)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestParseCeilings(t *testing.T) {
	var b strings.Builder
	b.WriteString("Category,Recommendation\n")
	for i := 0; i < 5; i++ {
		b.WriteString("cost,Resize\n")
	}
	input := []byte(b.String())

	p, _ := newParser(Options{MaxRows: 4})
	_, err := p.Parse(input)
	assert.True(t, errors.Is(err, ErrTooManyRows))

	p, _ = newParser(Options{MaxRows: 5})
	res, err := p.Parse(input)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)

	p, _ = newParser(Options{MaxBytes: 10})
	_, err = p.Parse(input)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = p.ParseReader(bytes.NewReader(input))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParseHeaders(t *testing.T) {
	p, _ := newParser(Options{})
	res, err := p.Parse([]byte(" Category ,Impact,Impact,\ncost,High,Low,x\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Category", "Impact", "Impact_2", "column_4"}, res.Headers)
	row := res.Rows[0]
	assert.Equal(t, "High", row.Get("Impact"))
	assert.Equal(t, "Low", row.Get("Impact_2"))
	assert.Equal(t, "", row.Get("Missing"))
}

func TestParseSkipsBlankRowsAndEmptyInput(t *testing.T) {
	p, _ := newParser(Options{})
	res, err := p.Parse([]byte("Category,Recommendation\n,\ncost,Resize\n"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 3, res.Rows[0].Line)

	_, err = p.Parse([]byte(""))
	assert.ErrorIs(t, err, ErrNoHeader)
}
