package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		locale string
		key    string
		data   map[string]any
		want   string
	}{
		{"en", "progress.signed", map[string]any{"index": 1, "total": 3}, "Signed file 1 of 3"},
		{"pt-BR", "progress.signed", map[string]any{"index": 1, "total": 3}, "Arquivo 1 de 3 assinado"},
		{"en", "progress.archive", map[string]any{"name": "docs.zip"}, "Processing archive docs.zip"},
		{"pt-BR", "progress.archive_signed", map[string]any{"processed": 4, "total": 5}, "4 de 5 documentos assinados"},
		{"en", "completion.error", map[string]any{"error": "boom"}, "Signing failed: boom"},
		{"fr", "progress.signed", map[string]any{"index": 2, "total": 2}, "Signed file 2 of 2"},
		{"en", "no.such.key", nil, "no.such.key"},
	}

	for _, tt := range tests {
		t.Run(tt.locale+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.locale).Render(tt.key, tt.data))
		})
	}
}

func TestRenderCount(t *testing.T) {
	en := New("en")
	assert.Equal(t, "1 file could not be signed: a.pdf",
		en.RenderCount(KeyFailedFiles, 1, map[string]any{"files": "a.pdf"}))
	assert.Equal(t, "2 files could not be signed: a.pdf, b.pdf",
		en.RenderCount(KeyFailedFiles, 2, map[string]any{"files": "a.pdf, b.pdf"}))

	pt := New("pt-BR")
	assert.Equal(t, "2 arquivos não puderam ser assinados: a.pdf, b.pdf",
		pt.RenderCount(KeyFailedFiles, 2, map[string]any{"files": "a.pdf, b.pdf"}))
}
