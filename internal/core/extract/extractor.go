package extract

import (
	"bytes"
	"errors"
	"fmt"
	"mime"

	"code.sajari.com/docconv"

	"github.com/paralegalhq/casevault/internal/core"
)

var (
	// ErrUnsupportedFormat is returned for mime types the extractor does not
	// handle at all.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed wraps parser errors for a supported format.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// supportedTypes is the allowlist of mime types docconv can convert for us.
var supportedTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/msword":               true,
	"application/vnd.oasis.opendocument.text": true,
	"application/rtf":                  true,
	"text/html":                        true,
	"text/plain":                       true,
	"text/markdown":                    true,
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts raw bytes to sanitized text. It is a pure function of its
// inputs: no state is kept between calls.
func (e *DocconvExtractor) Extract(data []byte, contentType string) (string, error) {
	// Upload headers often carry parameters ("text/plain; charset=utf-8");
	// only the media type itself selects the parser.
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	if !supportedTypes[mediaType] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}

	// Plain text needs no parser; run it through sanitization only.
	if mediaType == "text/plain" || mediaType == "text/markdown" {
		return Sanitize(string(data)), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), mediaType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	return Sanitize(res.Body), nil
}
