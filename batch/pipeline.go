// Package batch signs sets of PDF documents: loose files first, then the
// PDFs found inside at most one zip archive. A document that cannot be signed
// is recorded and the run goes on.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/digitorus/pdfbatchsign/sign"
	"github.com/digitorus/pdfbatchsign/staging"
)

var ErrMultipleArchives = errors.New("at most one zip archive can be signed per run")

// defaultCertificateName is used when the upload carries no name.
const defaultCertificateName = "certificate.pfx"

// Item is an uploaded input: a PDF or a zip archive.
type Item struct {
	Name    string
	Payload []byte
}

// Credential is the uploaded PKCS#12 bundle and its password.
type Credential struct {
	Name     string
	Payload  []byte
	Password string
}

// Request describes one signing run.
type Request struct {
	Credential Credential
	StampText  string
	Items      []Item
}

// Result is returned by Run. OutputDir is empty when the run failed before
// an output directory was chosen.
type Result struct {
	OutputDir   string
	FailedFiles []string
}

// Options configure a Pipeline. Zero values select defaults.
type Options struct {
	Store       staging.Store
	Outputs     OutputChooser
	Sink        Sink
	NewEmbedder EmbedderFactory
	ChunkSize   int
	Logger      zerolog.Logger
}

// Pipeline runs signing requests one at a time.
type Pipeline struct {
	opts Options
	mu   sync.Mutex
}

// New returns a pipeline. A zero Options value signs with the sign package,
// stages in the system temporary directory and writes below the home
// directory.
func New(opts Options) *Pipeline {
	if opts.Store == nil {
		opts.Store = staging.NewFileStore("", opts.Logger)
	}
	if opts.Outputs == nil {
		opts.Outputs = HomeOutputChooser{}
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.NewEmbedder == nil {
		opts.NewEmbedder = NewSignEmbedderFactory(SignOptions{})
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Pipeline{opts: opts}
}

// Run signs every item of req. Per document failures end up in
// Result.FailedFiles; only staging, extraction and output errors, or a
// cancelled ctx, make Run return an error. Exactly one completion event is
// emitted either way and staged data is released afterwards.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.opts.Logger
	defer func() {
		if err := p.opts.Store.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("failed to release staged files")
		}
	}()

	run := NewRun()
	outputDir, err := p.execute(ctx, run, req)
	result := Result{OutputDir: outputDir, FailedFiles: run.FailedFiles()}

	if err != nil {
		logger.Error().Err(err).Int("processed", run.Processed).Msg("signing run aborted")
		p.opts.Sink.Complete(Completion{
			Success:     false,
			Message:     KeyCompletedError,
			FailedFiles: result.FailedFiles,
			Error:       err.Error(),
		})
		return result, err
	}

	logger.Info().
		Str("output", outputDir).
		Int("processed", run.Processed).
		Int("failed", len(result.FailedFiles)).
		Msg("signing run completed")
	p.opts.Sink.Complete(Completion{
		Success:     true,
		OutputDir:   outputDir,
		Message:     KeyCompleted,
		FailedFiles: result.FailedFiles,
	})
	return result, nil
}

type stagedFile struct {
	name string
	path string
}

func (p *Pipeline) execute(ctx context.Context, run *Run, req Request) (string, error) {
	loose, archive, err := partition(req.Items)
	if err != nil {
		return "", err
	}

	store := p.opts.Store
	if err := store.Reset(); err != nil {
		return "", fmt.Errorf("prepare staging: %w", err)
	}

	certName := req.Credential.Name
	if certName == "" {
		certName = defaultCertificateName
	}
	if _, err := store.SaveCertificate(certName, req.Credential.Payload); err != nil {
		return "", fmt.Errorf("stage certificate: %w", err)
	}
	certPath, err := store.CertificatePath()
	if err != nil {
		return "", fmt.Errorf("stage certificate: %w", err)
	}

	staged := make([]stagedFile, 0, len(loose))
	for _, item := range loose {
		path, err := store.SaveInput(item.Name, item.Payload)
		if err != nil {
			return "", fmt.Errorf("stage %s: %w", item.Name, err)
		}
		staged = append(staged, stagedFile{name: filepath.Base(path), path: path})
	}

	outputDir, err := p.opts.Outputs.Next()
	if err != nil {
		return "", fmt.Errorf("choose output directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return outputDir, fmt.Errorf("create output directory: %w", err)
	}

	embedder := p.opts.NewEmbedder(certPath, req.Credential.Password, req.StampText)
	run.Total = len(staged)

	if err := p.signLoose(ctx, run, embedder, staged, outputDir); err != nil {
		return outputDir, err
	}

	if archive != nil {
		if err := p.signArchive(ctx, run, embedder, *archive, outputDir); err != nil {
			return outputDir, err
		}
	}

	return outputDir, nil
}

// partition splits items into loose documents and the archive, keeping the
// order of the loose documents.
func partition(items []Item) ([]Item, *Item, error) {
	var loose []Item
	var archive *Item
	for i := range items {
		if DetectKind(items[i]) != KindZip {
			loose = append(loose, items[i])
			continue
		}
		if archive != nil {
			return nil, nil, ErrMultipleArchives
		}
		archive = &items[i]
	}
	return loose, archive, nil
}

func (p *Pipeline) signLoose(ctx context.Context, run *Run, embedder Embedder, staged []stagedFile, outputDir string) error {
	for i, file := range staged {
		if err := ctx.Err(); err != nil {
			return err
		}

		p.attempt(run, embedder, file.name, file.path, filepath.Join(outputDir, file.name))
		run.Advance()

		p.opts.Sink.Progress(Event{
			Progress:    percent(i+1, len(staged)),
			MessageKey:  KeySigned,
			MessageData: map[string]any{"index": i + 1, "total": len(staged)},
		})
	}
	return nil
}

func (p *Pipeline) signArchive(ctx context.Context, run *Run, embedder Embedder, archive Item, outputDir string) error {
	p.opts.Sink.Status(Event{
		Progress:    0,
		MessageKey:  KeyArchive,
		MessageData: map[string]any{"name": archive.Name},
	})

	store := p.opts.Store
	archivePath, err := store.SaveInput(archive.Name, archive.Payload)
	if err != nil {
		return fmt.Errorf("stage %s: %w", archive.Name, err)
	}

	base := filepath.Base(archivePath)
	extractDir := filepath.Join(store.InputDir(), "extracted-"+strings.TrimSuffix(base, filepath.Ext(base)))
	if err := extractArchive(archivePath, extractDir); err != nil {
		return fmt.Errorf("extract %s: %w", archive.Name, err)
	}
	if err := os.Remove(archivePath); err != nil {
		return fmt.Errorf("remove %s: %w", archive.Name, err)
	}

	count, err := CountPDFs(extractDir)
	if err != nil {
		return fmt.Errorf("count documents in %s: %w", archive.Name, err)
	}
	run.Total += count
	p.opts.Logger.Debug().Str("archive", archive.Name).Int("documents", count).Msg("archive extracted")

	for chunk, err := range Chunks(WalkPDFs(extractDir), p.opts.ChunkSize) {
		if err != nil {
			return fmt.Errorf("walk %s: %w", archive.Name, err)
		}

		for _, path := range chunk {
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(extractDir, path)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", path, err)
			}
			mirrored := filepath.Join(outputDir, rel)
			if err := os.MkdirAll(filepath.Dir(mirrored), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			// A loose document may already own the mirrored path.
			output, err := staging.UniquePath(mirrored)
			if err != nil {
				return fmt.Errorf("resolve output for %s: %w", rel, err)
			}
			if output != mirrored {
				p.opts.Logger.Warn().
					Str("file", filepath.ToSlash(rel)).
					Str("output", filepath.Base(output)).
					Msg("output name already taken, writing under a new name")
			}

			p.attempt(run, embedder, filepath.ToSlash(rel), path, output)

			if err := os.Remove(path); err != nil {
				p.opts.Logger.Warn().Err(err).Str("file", path).Msg("failed to remove processed input")
			}

			processed := run.Advance()
			p.opts.Sink.Progress(Event{
				Progress:    percent(processed, run.Total),
				MessageKey:  KeyArchiveSigned,
				MessageData: map[string]any{"processed": processed, "total": run.Total},
			})
		}
	}
	return nil
}

// attempt signs one document and records it as failed on any error.
func (p *Pipeline) attempt(run *Run, embedder Embedder, name string, input string, output string) {
	if err := embedder.Embed(input, output); err != nil {
		run.Fail(name)
		p.opts.Logger.Warn().
			Err(err).
			Str("file", name).
			Stringer("kind", sign.KindOf(sign.Classify(err))).
			Msg("failed to sign document")
		return
	}
	p.opts.Logger.Debug().Str("file", name).Msg("document signed")
}
