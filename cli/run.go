package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/digitorus/pdfbatchsign/batch"
	"github.com/digitorus/pdfbatchsign/config"
	"github.com/digitorus/pdfbatchsign/staging"
)

func newPipeline(cfg config.Config, logger zerolog.Logger, sink batch.Sink) *batch.Pipeline {
	return batch.New(batch.Options{
		Store:       staging.NewFileStore(cfg.StagingDir, logger),
		Outputs:     batch.HomeOutputChooser{Root: cfg.OutputRoot},
		Sink:        sink,
		NewEmbedder: batch.NewSignEmbedderFactory(cfg.SignOptions()),
		ChunkSize:   cfg.ChunkSize,
		Logger:      logger,
	})
}

func newRunCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <request.json|->",
		Short: "Run a JSON signing request and stream events as JSON lines",
		Long: `Run a signing request in the upload format:

  {"cert": {"name": "id.pfx", "buffer": "data:...;base64,..."},
   "files": [{"name": "a.pdf", "buffer": "data:...;base64,..."}],
   "options": {"password": "...", "eSignText": "..."}}

Every progress, status and completion event is written to standard output as
one JSON object per line. Use "-" to read the request from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, global, args[0])
		},
	}
}

func runRequest(cmd *cobra.Command, global *globalFlags, source string) error {
	cfg, err := loadConfig(cmd, global)
	if err != nil {
		return err
	}
	if err := cfg.ValidateFields(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return fmt.Errorf("open request: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		in = f
	}

	req, err := batch.DecodeRequest(in)
	if err != nil {
		return err
	}
	if req.StampText == "" {
		req.StampText = cfg.StampText
	}

	events := make(chan batch.Message)
	written := make(chan error, 1)
	go func() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		var first error
		for msg := range events {
			if err := enc.Encode(msg); err != nil && first == nil {
				first = err
			}
		}
		written <- first
	}()

	_, err = newPipeline(cfg, logger, batch.ChannelSink(events)).Run(cmd.Context(), req)
	close(events)

	if werr := <-written; werr != nil && err == nil {
		err = fmt.Errorf("write events: %w", werr)
	}
	return err
}
