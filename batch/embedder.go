package batch

import (
	"time"

	"github.com/digitorus/pdfbatchsign/sign"
)

// Embedder signs one document. Implementations are used by a single
// goroutine.
type Embedder interface {
	Embed(input string, output string) error
}

// EmbedderFactory prepares an Embedder for one run from the staged
// certificate, its password and the stamp text.
type EmbedderFactory func(certPath string, password string, stampText string) Embedder

// SignOptions are the signing settings shared by every document of a run.
type SignOptions struct {
	Reason        string
	SignatureSize int
	TSA           sign.TSA
}

// NewSignEmbedderFactory returns a factory whose embedders sign with the
// sign package.
func NewSignEmbedderFactory(opts SignOptions) EmbedderFactory {
	return func(certPath, password, stampText string) Embedder {
		return &signEmbedder{
			certPath: certPath,
			password: password,
			opts:     opts,
			stamp:    stampText,
		}
	}
}

type signEmbedder struct {
	certPath string
	password string
	opts     SignOptions
	stamp    string

	credential *sign.Credential
}

// Embed decodes the credential on first use. A credential that fails to
// decode is retried for the next document, so every document reports its own
// failure.
func (e *signEmbedder) Embed(input, output string) error {
	if e.credential == nil {
		credential, err := sign.LoadCredentialFile(e.certPath, e.password)
		if err != nil {
			return err
		}
		e.credential = credential
	}

	return sign.SignFileTo(input, output, sign.SignData{
		Credential:    e.credential,
		Stamp:         sign.Stamp{Text: e.stamp},
		TSA:           e.opts.TSA,
		SignatureSize: e.opts.SignatureSize,
		Signature: sign.SignDataSignature{
			Info: sign.SignDataSignatureInfo{
				Reason: e.opts.Reason,
				Date:   time.Now(),
			},
		},
	})
}
