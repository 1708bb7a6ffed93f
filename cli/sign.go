package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/digitorus/pdfbatchsign/batch"
	"github.com/digitorus/pdfbatchsign/internal/messages"
)

// PasswordEnv is read when --password is not given.
const PasswordEnv = "PDFBATCHSIGN_PASSWORD"

var ErrNoCertificate = errors.New("a certificate is required, use --cert")

type signFlags struct {
	cert       string
	password   string
	stamp      string
	reason     string
	tsa        string
	outputRoot string
	stagingDir string
	chunkSize  int
}

func newSignCommand(global *globalFlags) *cobra.Command {
	flags := &signFlags{}

	cmd := &cobra.Command{
		Use:   "sign [flags] <file.pdf|archive.zip>...",
		Short: "Stamp and sign PDF documents",
		Long: `Stamp and sign PDF documents with a PKCS#12 certificate.

Every document gets the stamp text at the top left of its first page and an
invisible signature field. Documents that cannot be signed are listed at the
end; the others are still written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, global, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.cert, "cert", "", "PKCS#12 (.pfx, .p12) file holding the key and certificate")
	cmd.Flags().StringVar(&flags.password, "password", "", "certificate password (default $"+PasswordEnv+")")
	cmd.Flags().StringVar(&flags.stamp, "stamp", "", "text drawn on the first page")
	cmd.Flags().StringVar(&flags.reason, "reason", "", "signing reason")
	cmd.Flags().StringVar(&flags.tsa, "tsa", "", "URL of an RFC 3161 time-stamp authority")
	cmd.Flags().StringVar(&flags.outputRoot, "output-root", "", "directory receiving the output folder (default home directory)")
	cmd.Flags().StringVar(&flags.stagingDir, "staging-dir", "", "directory for staged uploads (default system temp directory)")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 0, "archive paths buffered at a time")

	return cmd
}

func runSign(cmd *cobra.Command, global *globalFlags, flags *signFlags, args []string) error {
	cfg, err := loadConfig(cmd, global)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("stamp") {
		cfg.StampText = flags.stamp
	}
	if f.Changed("reason") {
		cfg.Reason = flags.reason
	}
	if f.Changed("tsa") {
		cfg.TSAURL = flags.tsa
	}
	if f.Changed("output-root") {
		cfg.OutputRoot = flags.outputRoot
	}
	if f.Changed("staging-dir") {
		cfg.StagingDir = flags.stagingDir
	}
	if f.Changed("chunk-size") {
		cfg.ChunkSize = flags.chunkSize
	}
	if err := cfg.ValidateFields(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}

	if flags.cert == "" {
		return ErrNoCertificate
	}
	certificate, err := os.ReadFile(flags.cert)
	if err != nil {
		return fmt.Errorf("read certificate: %w", err)
	}

	password := flags.password
	if !f.Changed("password") {
		password = os.Getenv(PasswordEnv)
	}

	items := make([]batch.Item, 0, len(args))
	for _, path := range args {
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		items = append(items, batch.Item{Name: filepath.Base(path), Payload: payload})
	}

	pipeline := newPipeline(cfg, logger, newConsoleSink(cmd.OutOrStdout(), messages.New(cfg.Locale)))
	_, err = pipeline.Run(cmd.Context(), batch.Request{
		Credential: batch.Credential{
			Name:     filepath.Base(flags.cert),
			Payload:  certificate,
			Password: password,
		},
		StampText: cfg.StampText,
		Items:     items,
	})
	return err
}
