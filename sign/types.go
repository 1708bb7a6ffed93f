package sign

import (
	"crypto"
	"crypto/x509"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

// DefaultSignatureSize is the number of bytes reserved for the CMS blob in the
// signature /Contents entry. The hex placeholder is twice as long.
const DefaultSignatureSize = 2770

// DefaultReason is written to the signature dictionary when no reason is set.
const DefaultReason = "Assinatura digital"

type TSA struct {
	URL      string
	Username string
	Password string
}

// Credential is a decoded signing identity.
type Credential struct {
	Signer      crypto.Signer
	Certificate *x509.Certificate
	// Chain holds the CA certificates bundled with the leaf, without the leaf itself.
	Chain []*x509.Certificate
}

// Stamp is the visible text drawn in the top left corner of the first page.
type Stamp struct {
	Text string
}

type SignData struct {
	Signature       SignDataSignature
	Credential      *Credential
	DigestAlgorithm crypto.Hash
	TSA             TSA
	Stamp           Stamp

	// SignatureSize is the number of bytes reserved for the CMS blob. Zero
	// means DefaultSignatureSize.
	SignatureSize int

	objectId uint32
}

type SignDataSignature struct {
	Info SignDataSignatureInfo
}

type SignDataSignatureInfo struct {
	Reason string
	Date   time.Time
}

type xrefEntry struct {
	ID     uint32
	Gen    uint16
	Offset int64
}

type SignContext struct {
	OutputBuffer       *filebuffer.Buffer
	SignData           SignData
	PDFReader          *pdf.Reader
	ByteRangeValues    []int64
	SignatureMaxLength uint32

	byteRangeStartByte         int64
	signatureContentsStartByte int64

	security     *securityHandler
	nextObjectID uint32
	xrefEntries  []xrefEntry
	newXrefStart int64
}
