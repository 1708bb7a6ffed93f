package staging

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedPayload = errors.New("unsupported payload")

// DecodePayload turns an uploaded buffer into bytes. Uploads arrive either as
// raw bytes or as a data URL ("data:application/x-pkcs12;base64,...").
// Strings that are not data URLs are taken literally.
func DecodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		if !strings.HasPrefix(p, "data:") {
			return []byte(p), nil
		}
		meta, data, ok := strings.Cut(p, ",")
		if !ok {
			return nil, fmt.Errorf("%w: data url without payload", ErrUnsupportedPayload)
		}
		if !strings.HasSuffix(meta, ";base64") {
			return []byte(data), nil
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, v)
	}
}
