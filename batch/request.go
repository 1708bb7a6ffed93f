package batch

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/digitorus/pdfbatchsign/staging"
)

// uploadRequest is the JSON form of a signing request as sent by upload
// front ends.
type uploadRequest struct {
	Cert    uploadFile   `json:"cert"`
	Files   []uploadFile `json:"files"`
	Options struct {
		Password  string `json:"password"`
		ESignText string `json:"eSignText"`
	} `json:"options"`
}

type uploadFile struct {
	Name   string          `json:"name"`
	Buffer json.RawMessage `json:"buffer"`
}

// DecodeRequest reads a JSON signing request. Buffers may be data URLs,
// literal strings, arrays of byte values or serialized Node.js buffers
// ({"type": "Buffer", "data": [...]}).
func DecodeRequest(r io.Reader) (Request, error) {
	var upload uploadRequest
	if err := json.NewDecoder(r).Decode(&upload); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}

	cert, err := decodeBuffer(upload.Cert.Buffer)
	if err != nil {
		return Request{}, fmt.Errorf("certificate %s: %w", upload.Cert.Name, err)
	}

	req := Request{
		Credential: Credential{
			Name:     upload.Cert.Name,
			Payload:  cert,
			Password: upload.Options.Password,
		},
		StampText: upload.Options.ESignText,
		Items:     make([]Item, 0, len(upload.Files)),
	}
	for _, file := range upload.Files {
		payload, err := decodeBuffer(file.Buffer)
		if err != nil {
			return Request{}, fmt.Errorf("file %s: %w", file.Name, err)
		}
		req.Items = append(req.Items, Item{Name: file.Name, Payload: payload})
	}
	return req, nil
}

func decodeBuffer(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: missing buffer", staging.ErrUnsupportedPayload)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return staging.DecodePayload(text)
	}

	var values []byte
	if err := json.Unmarshal(raw, &values); err == nil {
		return staging.DecodePayload(values)
	}

	var node struct {
		Type string `json:"type"`
		Data []byte `json:"data"`
	}
	if err := json.Unmarshal(raw, &node); err == nil && node.Type == "Buffer" {
		return staging.DecodePayload(node.Data)
	}

	return nil, fmt.Errorf("%w: %s", staging.ErrUnsupportedPayload, truncate(raw, 32))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
