package parser

import (
	"log/slog"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// decodeToUTF8 converts body to UTF-8. The encoding comes from a byte order
// mark, the declared Content-Type charset, an in-document <meta> prescan, or
// a UTF-8 validity check, in that order, falling back to windows-1252.
func decodeToUTF8(body []byte, contentType string) []byte {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		slog.Warn("Failed to decode content, keeping raw bytes", "encoding", name, "error", err)
		return body
	}
	return out
}

// nfc normalizes text to Unicode composed form
func nfc(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
