package batch

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfbatchsign/staging"
)

func TestDecodeRequest(t *testing.T) {
	pfx := base64.StdEncoding.EncodeToString([]byte("pfx"))
	body := `{
		"cert": {"name": "id.pfx", "buffer": "data:application/x-pkcs12;base64,` + pfx + `"},
		"files": [
			{"name": "a.pdf", "buffer": [37, 80, 68, 70]},
			{"name": "b.pdf", "buffer": {"type": "Buffer", "data": [37, 80]}},
			{"name": "c.pdf", "buffer": "%PDF"}
		],
		"options": {"password": "secret", "eSignText": "Assinado"}
	}`

	req, err := DecodeRequest(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, Credential{Name: "id.pfx", Payload: []byte("pfx"), Password: "secret"}, req.Credential)
	assert.Equal(t, "Assinado", req.StampText)
	assert.Equal(t, []Item{
		{Name: "a.pdf", Payload: []byte("%PDF")},
		{Name: "b.pdf", Payload: []byte("%P")},
		{Name: "c.pdf", Payload: []byte("%PDF")},
	}, req.Items)
}

func TestDecodeRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing cert buffer", `{"cert": {"name": "id.pfx"}, "files": []}`},
		{"unsupported buffer", `{"cert": {"name": "id.pfx", "buffer": 42}}`},
		{"bad base64", `{"cert": {"name": "id.pfx", "buffer": "data:x;base64,!!"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}

	_, err := DecodeRequest(strings.NewReader(`{"cert": {"name": "id.pfx", "buffer": true}}`))
	assert.ErrorIs(t, err, staging.ErrUnsupportedPayload)
}
