package provider

import (
	"encoding/base64"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DataURL wraps raw image bytes as data:<mime>;base64,<payload>.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// imageMIME picks the MIME type for an image payload. A declared image/*
// content type wins; otherwise the bytes are sniffed. The second return is
// false when the payload is not an image at all.
func imageMIME(declared string, data []byte) (string, bool) {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt, true
	}
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return detected.String(), true
		}
	}
	return detected.String(), false
}
