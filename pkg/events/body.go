package events

import (
	"encoding/base64"
	"fmt"
)

// DecodeBody decodes the attachment body from its transport encoding. The
// driver transport delivers base64 unless the event says otherwise.
func (a AttachmentContent) DecodeBody() ([]byte, error) {
	switch a.Encoding {
	case "", "base64":
		body, err := base64.StdEncoding.DecodeString(a.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 attachment body: %w", err)
		}

		return body, nil
	case "utf8", "utf-8":
		return []byte(a.Body), nil
	default:
		return nil, fmt.Errorf("unknown attachment encoding %q", a.Encoding)
	}
}
