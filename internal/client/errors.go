package client

import "errors"

// Sentinel errors for the page fetch error taxonomy. Workers map these
// to the user-facing strings below when a page fails.
var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrSocket      = errors.New("network error")
	ErrParse       = errors.New("parse error")
	Err509         = errors.New("bandwidth limit exceeded")
	ErrWriteFailed = errors.New("write failed")
	ErrPToken      = errors.New("ptoken error")

	ErrDecodeFailed  = errors.New("decode failed")
	ErrReadingFailed = errors.New("reading failed")
	ErrNotFound      = errors.New("not found")
	ErrOutOfRange    = errors.New("out of range")
)

const unknownErrorText = "Unknown error"

var errorTexts = map[error]string{
	ErrInvalidURL:    "Invalid URL",
	ErrSocket:        "Network error",
	ErrParse:         "Failed to parse page",
	Err509:           "Bandwidth limit exceeded (509)",
	ErrWriteFailed:   "Failed to write to storage",
	ErrPToken:        "Failed to get page token",
	ErrDecodeFailed:  "Failed to decode image",
	ErrReadingFailed: "Failed to read image",
	ErrNotFound:      "Image not found",
	ErrOutOfRange:    "Page out of range",
}

// ErrorText returns the user-facing message for a taxonomy error.
// Unrecognized or nil errors map to the unknown-error message.
func ErrorText(err error) string {
	for sentinel, text := range errorTexts {
		if errors.Is(err, sentinel) {
			return text
		}
	}
	return unknownErrorText
}
