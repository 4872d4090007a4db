package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "crlf to lf", in: "a\r\nb", want: "a\nb"},
		{name: "bare cr to lf", in: "a\rb", want: "a\nb"},
		{name: "three newlines collapse to two", in: "a\n\n\nb", want: "a\n\nb"},
		{name: "five newlines collapse to two", in: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "double newline kept", in: "a\n\nb", want: "a\n\nb"},
		{name: "space runs collapse", in: "a    b", want: "a b"},
		{name: "tab runs collapse", in: "a\t\tb", want: "a b"},
		{name: "mixed space tab run", in: "a \t b", want: "a b"},
		{name: "single space kept", in: "a b", want: "a b"},
		{name: "trimmed", in: "  hello  ", want: "hello"},
		{name: "crlf run then collapse", in: "a\r\n\r\n\r\nb", want: "a\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestExtractPlainText(t *testing.T) {
	e := NewDocconvExtractor(false)

	text, err := e.Extract([]byte("Motion to   dismiss.\r\n\r\n\r\nFiled 2024."), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "Motion to dismiss.\n\nFiled 2024.", text)
}

func TestExtractContentTypeWithParameters(t *testing.T) {
	e := NewDocconvExtractor(false)

	text, err := e.Extract([]byte("Exhibit A."), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "Exhibit A.", text)
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewDocconvExtractor(false)

	_, err := e.Extract([]byte{0x50, 0x4b}, "application/zip")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractFailedParse(t *testing.T) {
	e := NewDocconvExtractor(false)

	// Not a real PDF; the parser must fail, not panic.
	_, err := e.Extract([]byte("not a pdf"), "application/pdf")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}
