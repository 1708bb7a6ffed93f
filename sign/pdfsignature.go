package sign

import (
	"bytes"
	"crypto"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const signatureByteRangePlaceholder = "/ByteRange[0 ********** ********** **********]"

// tsaAllowance is added to the placeholder when a timestamp token is
// requested. Different TSA servers return different response sizes.
const tsaAllowance = 9000

// cmsOverhead approximates the CMS structure around the signature, digests
// and certificates.
const cmsOverhead = 512

// createSignaturePlaceholder returns the signature dictionary with a
// ByteRange placeholder and a zero filled /Contents, together with the
// offsets of both placeholders relative to the start of the dictionary.
// /Contents of a signature dictionary is never encrypted.
func (context *SignContext) createSignaturePlaceholder() (dssd *objectBuffer, byte_range_start int64, contents_start int64) {
	signature_buffer := context.objectRevision(context.SignData.objectId, 0)

	signature_buffer.WriteString("<< /Type /Sig")
	signature_buffer.WriteString(" /Filter /Adobe.PPKLite")
	signature_buffer.WriteString(" /SubFilter /adbe.pkcs7.detached")

	byte_range_start = int64(signature_buffer.Len()) + 1
	signature_buffer.WriteString(" " + signatureByteRangePlaceholder)

	// contents_start points at the opening angle bracket.
	contents_start = int64(signature_buffer.Len()) + 10
	signature_buffer.WriteString(" /Contents<")
	signature_buffer.Write(bytes.Repeat([]byte("0"), int(context.SignatureMaxLength)))
	signature_buffer.WriteString(">")

	signature_buffer.WriteString(" /Reason ")
	signature_buffer.writeText(context.SignData.Signature.Info.Reason)
	signature_buffer.WriteString(" /M ")
	signature_buffer.writeText(pdfDate(context.SignData.Signature.Info.Date))
	signature_buffer.WriteString(" >>")

	return signature_buffer, byte_range_start, contents_start
}

// estimateSignatureSize returns the expected size in bytes of the CMS blob.
func (context *SignContext) estimateSignatureSize() (int, error) {
	credential := context.SignData.Credential

	size := cmsOverhead + signatureSize(credential.Certificate.PublicKey)

	// Digest twice: message digest and signing certificate attribute.
	size += context.SignData.DigestAlgorithm.Size() * 2

	degenerated, err := pkcs7.DegenerateCertificate(credential.Certificate.Raw)
	if err != nil {
		return 0, fmt.Errorf("failed to degenerate certificate: %w", err)
	}
	size += len(degenerated)

	// The raw issuer is repeated in the signer info.
	size += len(credential.Certificate.RawIssuer)

	for _, cert := range credential.Chain {
		degenerated, err := pkcs7.DegenerateCertificate(cert.Raw)
		if err != nil {
			return 0, fmt.Errorf("failed to degenerate certificate in chain: %w", err)
		}
		size += len(degenerated)
	}

	return size, nil
}

func (context *SignContext) createSigningCertificateAttribute() (*pkcs7.Attribute, error) {
	hash := context.SignData.DigestAlgorithm.New()
	hash.Write(context.SignData.Credential.Certificate.Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // []ESSCertID, []ESSCertIDv2
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID, ESSCertIDv2
				if context.SignData.DigestAlgorithm.HashFunc() != crypto.SHA1 &&
					context.SignData.DigestAlgorithm.HashFunc() != crypto.SHA256 { // default SHA-256
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(getOIDFromHashAlgorithm(context.SignData.DigestAlgorithm))
					})
				}
				b.AddASN1OctetString(hash.Sum(nil)) // certHash
			})
		})
	})

	sse, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	signingCertificate := pkcs7.Attribute{
		Type:  asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}, // SigningCertificateV2
		Value: asn1.RawValue{FullBytes: sse},
	}
	if context.SignData.DigestAlgorithm.HashFunc() == crypto.SHA1 {
		signingCertificate.Type = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12} // SigningCertificate
	}
	return &signingCertificate, nil
}

// signedContent concatenates the two spans covered by the ByteRange.
func (context *SignContext) signedContent() []byte {
	file_content := context.OutputBuffer.Buff.Bytes()
	br := context.ByteRangeValues

	sign_content := make([]byte, 0, br[1]+br[3])
	sign_content = append(sign_content, file_content[br[0]:br[0]+br[1]]...)
	sign_content = append(sign_content, file_content[br[2]:br[2]+br[3]]...)
	return sign_content
}

func (context *SignContext) createSignature() ([]byte, error) {
	// Sadly we can't efficiently sign a file, we need to read all the bytes we want to sign.
	signed_data, err := pkcs7.NewSignedData(context.signedContent())
	if err != nil {
		return nil, fmt.Errorf("new signed data: %w", err)
	}

	signed_data.SetDigestAlgorithm(getOIDFromHashAlgorithm(context.SignData.DigestAlgorithm))
	signingCertificate, err := context.createSigningCertificateAttribute()
	if err != nil {
		return nil, fmt.Errorf("signing certificate attribute: %w", err)
	}

	signer_config := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*signingCertificate},
	}

	credential := context.SignData.Credential
	if err := signed_data.AddSignerChain(credential.Certificate, credential.Signer, credential.Chain, signer_config); err != nil {
		return nil, fmt.Errorf("add signer chain: %w", err)
	}

	// PDF needs a detached signature, meaning the content isn't included.
	signed_data.Detach()

	if context.SignData.TSA.URL != "" {
		signature_data := signed_data.GetSignedData()

		timestamp_response, err := context.GetTSA(signature_data.SignerInfos[0].EncryptedDigest)
		if err != nil {
			return nil, fmt.Errorf("get timestamp: %w", err)
		}

		ts, err := timestamp.ParseResponse(timestamp_response)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}

		_, err = pkcs7.Parse(ts.RawToken)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp token: %w", err)
		}

		timestamp_attribute := pkcs7.Attribute{
			Type:  asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14},
			Value: asn1.RawValue{FullBytes: ts.RawToken},
		}
		if err := signature_data.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{timestamp_attribute}); err != nil {
			return nil, err
		}
	}

	return signed_data.Finish()
}

// GetTSA requests an RFC 3161 timestamp over sign_content.
func (context *SignContext) GetTSA(sign_content []byte) (timestamp_response []byte, err error) {
	ts_request, err := timestamp.CreateRequest(bytes.NewReader(sign_content), &timestamp.RequestOptions{
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, context.SignData.TSA.URL, bytes.NewReader(ts_request))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request (%s): %w", context.SignData.TSA.URL, err)
	}

	req.Header.Add("Content-Type", "application/timestamp-query")
	req.Header.Add("Content-Transfer-Encoding", "binary")

	if context.SignData.TSA.Username != "" && context.SignData.TSA.Password != "" {
		req.SetBasicAuth(context.SignData.TSA.Username, context.SignData.TSA.Password)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timestamp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.New("non success response (" + strconv.Itoa(resp.StatusCode) + "): " + string(body))
	}

	timestamp_response_body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return timestamp_response_body, nil
}

// replaceSignature writes the hex encoded CMS blob into the /Contents gap.
// The gap never changes size; a blob that does not fit is an error.
func (context *SignContext) replaceSignature() error {
	signature, err := context.createSignature()
	if err != nil {
		return newError(KindSigningFailed, fmt.Errorf("failed to create signature: %w", err))
	}

	dst := make([]byte, hex.EncodedLen(len(signature)))
	hex.Encode(dst, signature)

	if uint32(len(dst)) > context.SignatureMaxLength {
		return errorf(KindInvalidSignature, "signature of %d bytes does not fit the %d byte placeholder", len(signature), context.SignatureMaxLength/2)
	}

	// Skip the opening angle bracket.
	start := context.ByteRangeValues[0] + context.ByteRangeValues[1] + 1
	copy(context.OutputBuffer.Buff.Bytes()[start:], dst)

	return nil
}
