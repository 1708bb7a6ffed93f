// Package cli implements the pdfbatchsign command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/digitorus/pdfbatchsign/config"
)

var Version = "dev"

type globalFlags struct {
	configFile string
	logLevel   string
	locale     string
}

// NewRootCommand returns the pdfbatchsign command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "pdfbatchsign",
		Short: "Sign PDF documents in bulk",
		Long: `pdfbatchsign adds a visible stamp and a detached PKCS#7 signature to
PDF documents. Inputs are PDF files and at most one zip archive; the
directory tree of the archive is kept in the output.

Examples:
  # Sign two documents
  pdfbatchsign sign --cert signer.pfx --password secret --stamp "Signed" a.pdf b.pdf

  # Sign every PDF inside an archive
  pdfbatchsign sign --cert signer.pfx --stamp "Signed" contracts.zip`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default "+config.DefaultLocation+" when present)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&flags.locale, "locale", "", "message language: en or pt-BR")

	root.AddCommand(newSignCommand(flags))
	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pdfbatchsign %s\n", Version)
		},
	}
}

// loadConfig reads the config file named by --config, or the default
// location when it exists, and applies the global flags.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	c := config.Default()

	path := flags.configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultLocation); err == nil {
			path = config.DefaultLocation
		} else if !errors.Is(err, fs.ErrNotExist) {
			return c, err
		}
	}
	if path != "" {
		var err error
		if c, err = config.Read(path); err != nil {
			return c, err
		}
	}

	if cmd.Flags().Changed("log-level") {
		c.LogLevel = flags.logLevel
	}
	if cmd.Flags().Changed("locale") {
		c.Locale = flags.locale
	}
	return c, nil
}

// newLogger writes human readable logs to w and installs the logger as the
// global one.
func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	log.Logger = logger
	return logger, nil
}
