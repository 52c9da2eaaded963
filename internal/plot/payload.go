// Package plot turns a question and a query result into a rendered chart.
package plot

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Kind tags the shape of a rendered payload.
type Kind string

const (
	KindHTML  Kind = "html"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Payload is the canonical envelope for branch output.
type Payload struct {
	Kind Kind   `json:"kind"`
	Data string `json:"data"`
	// MIME is set for images, e.g. "image/png".
	MIME string `json:"mime,omitempty"`
}

// IsHTML reports whether s is an HTML document.
func IsHTML(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html")
}

// Classify sorts renderer output into html, image or text. Images are
// returned as bare standard base64 without a data-URI prefix.
func Classify(out string) Payload {
	out = strings.TrimSpace(out)
	if IsHTML(out) {
		return Payload{Kind: KindHTML, Data: out}
	}
	if data, mime, ok := decodeImage(out); ok {
		return Payload{Kind: KindImage, Data: data, MIME: mime}
	}
	return Payload{Kind: KindText, Data: out}
}

func decodeImage(s string) (string, string, bool) {
	if strings.HasPrefix(s, "data:image/") {
		comma := strings.Index(s, ",")
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return "", "", false
		}
		s = s[comma+1:]
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return "", "", false
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", "", false
	}
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", "", false
	}
	return s, mime, true
}
