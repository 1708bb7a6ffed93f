package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/digitorus/pdfbatchsign/batch"
	"github.com/digitorus/pdfbatchsign/internal/messages"
)

// consoleSink prints one translated line per event.
type consoleSink struct {
	out     io.Writer
	catalog *messages.Catalog
}

func newConsoleSink(out io.Writer, catalog *messages.Catalog) *consoleSink {
	return &consoleSink{out: out, catalog: catalog}
}

func (s *consoleSink) Progress(e batch.Event) {
	fmt.Fprintf(s.out, "[%3d%%] %s\n", e.Progress, s.catalog.Render(e.MessageKey, e.MessageData))
}

func (s *consoleSink) Status(e batch.Event) {
	fmt.Fprintln(s.out, s.catalog.Render(e.MessageKey, e.MessageData))
}

func (s *consoleSink) Complete(c batch.Completion) {
	fmt.Fprintln(s.out, s.catalog.Render(c.Message, map[string]any{
		"outputDir": c.OutputDir,
		"error":     c.Error,
	}))
	if len(c.FailedFiles) > 0 {
		fmt.Fprintln(s.out, s.catalog.RenderCount(messages.KeyFailedFiles, len(c.FailedFiles), map[string]any{
			"files": strings.Join(c.FailedFiles, ", "),
		}))
	}
}
