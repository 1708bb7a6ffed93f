package sign

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfbatchsign/internal/testpdf"
	"github.com/digitorus/pdfbatchsign/internal/testpki"
)

var (
	byteRangePattern = regexp.MustCompile(`/ByteRange\[(\d+) (\d+) (\d+) (\d+)\]`)
	userEntryPattern = regexp.MustCompile(`/U <[0-9a-f]{64}>`)
)

func testSignData(t *testing.T, stamp string) SignData {
	t.Helper()
	id := testpki.NewIdentity(t)
	credential, err := LoadCredential(id.PFX(t, "secret"), "secret")
	require.NoError(t, err)

	return SignData{
		Credential: credential,
		Stamp:      Stamp{Text: stamp},
		Signature: SignDataSignature{
			Info: SignDataSignatureInfo{
				Reason: "Assinatura digital",
				Date:   time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
			},
		},
	}
}

func signBytes(t *testing.T, document []byte, data SignData) []byte {
	t.Helper()
	signed, err := Sign(bytes.NewReader(document), int64(len(document)), data)
	require.NoError(t, err)
	return signed
}

func byteRanges(t *testing.T, signed []byte) [][4]int64 {
	t.Helper()
	var ranges [][4]int64
	for _, m := range byteRangePattern.FindAllSubmatch(signed, -1) {
		var br [4]int64
		for i := range br {
			v, err := strconv.ParseInt(string(m[i+1]), 10, 64)
			require.NoError(t, err)
			br[i] = v
		}
		ranges = append(ranges, br)
	}
	return ranges
}

// verifySignatures checks every signature in the document against the bytes
// its ByteRange covers and returns the number of signatures found.
func verifySignatures(t *testing.T, signed []byte) int {
	t.Helper()
	ranges := byteRanges(t, signed)
	for _, br := range ranges {
		require.Equal(t, int64(0), br[0])
		require.Equal(t, byte('<'), signed[br[1]])
		require.Equal(t, byte('>'), signed[br[2]-1])

		der, err := hex.DecodeString(string(signed[br[1]+1 : br[2]-1]))
		require.NoError(t, err)

		p7, err := pkcs7.Parse(der)
		require.NoError(t, err)

		content := make([]byte, 0, br[1]+br[3])
		content = append(content, signed[br[0]:br[0]+br[1]]...)
		content = append(content, signed[br[2]:br[2]+br[3]]...)
		p7.Content = content
		require.NoError(t, p7.Verify())
	}
	return len(ranges)
}

func openPDF(t *testing.T, document []byte) *pdf.Reader {
	t.Helper()
	rdr, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	require.NoError(t, err)
	return rdr
}

func TestSignTableDocument(t *testing.T) {
	original := testpdf.Minimal("table")
	signed := signBytes(t, original, testSignData(t, "Assinado digitalmente"))

	assert.True(t, bytes.HasPrefix(signed, original), "original bytes must be preserved")

	ranges := byteRanges(t, signed)
	require.Len(t, ranges, 1)
	br := ranges[0]
	assert.Equal(t, int64(len(signed)), br[2]+br[3])
	assert.Equal(t, int64(2*DefaultSignatureSize+2), br[2]-br[1])
	assert.Equal(t, 1, verifySignatures(t, signed))

	rdr := openPDF(t, signed)
	assert.Equal(t, "table", rdr.XrefInformation.Type)

	acro_form := rdr.Trailer().Key("Root").Key("AcroForm")
	assert.Equal(t, int64(3), acro_form.Key("SigFlags").Int64())

	fields := acro_form.Key("Fields")
	require.Equal(t, 1, fields.Len())
	field := fields.Index(0)
	assert.Equal(t, "Signature1", field.Key("T").Text())
	assert.Equal(t, "Sig", field.Key("FT").Name())
	assert.Equal(t, "Widget", field.Key("Subtype").Name())
	assert.Equal(t, int64(4), field.Key("F").Int64())
	for i := 0; i < 4; i++ {
		assert.Equal(t, float64(0), field.Key("Rect").Index(i).Float64())
	}

	sig := field.Key("V")
	assert.Equal(t, "Sig", sig.Key("Type").Name())
	assert.Equal(t, "Adobe.PPKLite", sig.Key("Filter").Name())
	assert.Equal(t, "adbe.pkcs7.detached", sig.Key("SubFilter").Name())
	assert.Equal(t, "Assinatura digital", sig.Key("Reason").Text())
	assert.Equal(t, "D:20240301103000+00'00'", sig.Key("M").Text())

	page := rdr.Page(1).V
	assert.Equal(t, 1, page.Key("Annots").Len())
	assert.Equal(t, 3, page.Key("Contents").Len())
	fonts := page.Key("Resources").Key("Font")
	assert.False(t, fonts.Key("F1").IsNull())
	assert.Equal(t, "Helvetica", fonts.Key("StampF1").Key("BaseFont").Name())

	assert.Contains(t, string(signed), "/StampF1 8 Tf\n0.128 0.128 0.128 rg\n1 0 0 1 1 784 Tm\n(Assinado digitalmente) Tj")
}

func TestSignXrefStreamDocument(t *testing.T) {
	original := testpdf.Build(testpdf.Options{Text: "stream", XrefStream: true})
	signed := signBytes(t, original, testSignData(t, "stamp"))

	assert.True(t, bytes.HasPrefix(signed, original))
	assert.Equal(t, 3, bytes.Count(signed, []byte("/Type /XRef")))
	assert.NotContains(t, string(signed[len(original):]), "\nxref\n")
	assert.Equal(t, 1, verifySignatures(t, signed))

	rdr := openPDF(t, signed)
	assert.Equal(t, "stream", rdr.XrefInformation.Type)
	fields := rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	require.Equal(t, 1, fields.Len())
	assert.Equal(t, "Signature1", fields.Index(0).Key("T").Text())
	assert.Equal(t, 3, rdr.Page(1).V.Key("Contents").Len())
}

func TestSignInheritedAttributes(t *testing.T) {
	original := testpdf.Build(testpdf.Options{InheritResources: true})
	signed := signBytes(t, original, testSignData(t, "inherited"))

	assert.Equal(t, 1, verifySignatures(t, signed))

	// A4 MediaBox inherited from the page tree: 842 - 8.
	assert.Contains(t, string(signed), "1 0 0 1 1 834 Tm\n(inherited) Tj")

	page := openPDF(t, signed).Page(1).V
	fonts := page.Key("Resources").Key("Font")
	assert.False(t, fonts.Key("F1").IsNull())
	assert.False(t, fonts.Key("StampF1").IsNull())
}

func TestSignKeepsExistingAnnotations(t *testing.T) {
	original := testpdf.Build(testpdf.Options{Annotated: true})
	signed := signBytes(t, original, testSignData(t, "annotated"))

	annots := openPDF(t, signed).Page(1).V.Key("Annots")
	require.Equal(t, 2, annots.Len())
	assert.Equal(t, "Link", annots.Index(0).Key("Subtype").Name())
	assert.Equal(t, "Widget", annots.Index(1).Key("Subtype").Name())
}

func TestSignTwiceAddsOneField(t *testing.T) {
	data := testSignData(t, "first")
	once := signBytes(t, testpdf.Minimal("twice"), data)

	data.Stamp.Text = "second"
	twice := signBytes(t, once, data)

	assert.True(t, bytes.HasPrefix(twice, once), "previous revision must be preserved")
	assert.Equal(t, 2, verifySignatures(t, twice))

	ranges := byteRanges(t, twice)
	assert.Equal(t, int64(len(once)), ranges[0][2]+ranges[0][3])
	assert.Equal(t, int64(len(twice)), ranges[1][2]+ranges[1][3])

	rdr := openPDF(t, twice)
	fields := rdr.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	require.Equal(t, 2, fields.Len())
	assert.Equal(t, "Signature1", fields.Index(0).Key("T").Text())
	assert.Equal(t, "Signature2", fields.Index(1).Key("T").Text())
	assert.Equal(t, 2, rdr.Page(1).V.Key("Annots").Len())

	// Each stamp revision picks a fresh font name.
	fonts := rdr.Page(1).V.Key("Resources").Key("Font")
	assert.False(t, fonts.Key("StampF1").IsNull())
	assert.False(t, fonts.Key("StampF2").IsNull())
}

func readStream(t *testing.T, v pdf.Value) string {
	t.Helper()
	rd := v.Reader()
	defer func() {
		_ = rd.Close()
	}()
	data, err := io.ReadAll(rd)
	require.NoError(t, err)
	return string(data)
}

func TestSignEncryptedDocument(t *testing.T) {
	tests := []struct {
		name string
		opts testpdf.Options
	}{
		{"rc4 table", testpdf.Options{Text: "rc4", Encryption: testpdf.RC4}},
		{"aes table", testpdf.Options{Text: "aes", Encryption: testpdf.AES}},
		{"aes stream", testpdf.Options{Text: "aes", Encryption: testpdf.AES, XrefStream: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := testpdf.Build(tt.opts)
			data := testSignData(t, "Assinado")
			signed := signBytes(t, original, data)

			assert.True(t, bytes.HasPrefix(signed, original))
			assert.Equal(t, 1, verifySignatures(t, signed))

			// New strings and streams are not readable without the key.
			increments := string(signed[len(original):])
			assert.NotContains(t, increments, "(Assinado) Tj")
			assert.NotContains(t, increments, "(Signature1)")
			assert.NotContains(t, increments, "(Assinatura digital)")
			assert.Equal(t, 2, strings.Count(increments, "/Encrypt "))

			rdr := openPDF(t, signed)
			assert.False(t, rdr.Trailer().Key("Encrypt").IsNull())

			root := rdr.Trailer().Key("Root")
			assert.Equal(t, "en-US", root.Key("Lang").Text())
			assert.Equal(t, int64(3), root.Key("AcroForm").Key("SigFlags").Int64())

			field := root.Key("AcroForm").Key("Fields").Index(0)
			assert.Equal(t, "Signature1", field.Key("T").Text())
			assert.Equal(t, "Assinatura digital", field.Key("V").Key("Reason").Text())
			assert.Equal(t, "D:20240301103000+00'00'", field.Key("V").Key("M").Text())

			contents := rdr.Page(1).V.Key("Contents")
			require.Equal(t, 3, contents.Len())
			assert.True(t, strings.HasPrefix(readStream(t, contents.Index(0)), "q"))
			assert.Contains(t, readStream(t, contents.Index(1)), "("+tt.opts.Text+") Tj")
			assert.Contains(t, readStream(t, contents.Index(2)), "/StampF1 8 Tf")
			assert.Contains(t, readStream(t, contents.Index(2)), "(Assinado) Tj")

			data.Stamp.Text = "again"
			twice := signBytes(t, signed, data)
			assert.Equal(t, 2, verifySignatures(t, twice))
			fields := openPDF(t, twice).Trailer().Key("Root").Key("AcroForm").Key("Fields")
			require.Equal(t, 2, fields.Len())
			assert.Equal(t, "Signature2", fields.Index(1).Key("T").Text())
		})
	}
}

func TestSecurityHandlerKeys(t *testing.T) {
	for _, mode := range []testpdf.Encryption{testpdf.RC4, testpdf.AES} {
		document := testpdf.Build(testpdf.Options{Encryption: mode})
		handler, err := newSecurityHandler(openPDF(t, document).Trailer())
		require.NoError(t, err)
		require.NotNil(t, handler)
		assert.Len(t, handler.key, 16)
		assert.Equal(t, mode == testpdf.AES, handler.aes)
		assert.Len(t, handler.objectKey(7, 0), 16)

		encrypted, err := handler.encrypt(7, 0, []byte("payload"))
		require.NoError(t, err)
		if mode == testpdf.AES {
			assert.Len(t, encrypted, 32)
		} else {
			assert.Len(t, encrypted, len("payload"))
		}
	}

	handler, err := newSecurityHandler(openPDF(t, testpdf.Minimal("clear")).Trailer())
	require.NoError(t, err)
	assert.Nil(t, handler)
}

func TestStampTextEncoding(t *testing.T) {
	signed := signBytes(t, testpdf.Minimal("encoding"), testSignData(t, "Assinado (ok) ✓ é"))
	assert.Contains(t, string(signed), `(Assinado \(ok\) ? \351) Tj`)
}

func TestSignFileTo(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	original := testpdf.Minimal("file")
	require.NoError(t, os.WriteFile(input, original, 0o644))

	require.NoError(t, SignFileTo(input, output, testSignData(t, "file")))

	unchanged, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, original, unchanged)

	signed, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, 1, verifySignatures(t, signed))
}

func TestSignErrors(t *testing.T) {
	data := testSignData(t, "errors")

	t.Run("not a pdf", func(t *testing.T) {
		payload := []byte("this is not a pdf")
		_, err := Sign(bytes.NewReader(payload), int64(len(payload)), data)
		assert.ErrorIs(t, err, ErrInvalidPDF)
		assert.Equal(t, KindInvalidPDF, KindOf(err))
	})

	t.Run("user password required", func(t *testing.T) {
		payload := testpdf.Build(testpdf.Options{Encryption: testpdf.RC4})
		// A user entry that does not match the empty password.
		payload = userEntryPattern.ReplaceAll(payload, []byte("/U <"+strings.Repeat("0", 64)+">"))
		_, err := Sign(bytes.NewReader(payload), int64(len(payload)), data)
		assert.ErrorIs(t, err, ErrInvalidPDF)
		assert.ErrorIs(t, err, pdf.ErrInvalidPassword)
	})

	t.Run("unsupported security handler", func(t *testing.T) {
		payload := bytes.Replace(testpdf.Build(testpdf.Options{Encryption: testpdf.RC4}),
			[]byte("/Filter /Standard"), []byte("/Filter /Custom12"), 1)
		_, err := Sign(bytes.NewReader(payload), int64(len(payload)), data)
		assert.ErrorIs(t, err, ErrInvalidPDF)
	})

	t.Run("placeholder too small", func(t *testing.T) {
		small := data
		small.SignatureSize = 100
		payload := testpdf.Minimal("small")
		_, err := Sign(bytes.NewReader(payload), int64(len(payload)), small)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("key mismatch", func(t *testing.T) {
		other := testpki.NewUniqueIdentity(t, "other")
		mismatched := data
		mismatched.Credential = &Credential{
			Signer:      other.Key,
			Certificate: data.Credential.Certificate,
		}
		payload := testpdf.Minimal("mismatch")
		_, err := Sign(bytes.NewReader(payload), int64(len(payload)), mismatched)
		assert.ErrorIs(t, err, ErrInvalidCertificate)
	})

	t.Run("missing credential", func(t *testing.T) {
		missing := data
		missing.Credential = nil
		payload := testpdf.Minimal("missing")
		_, err := Sign(bytes.NewReader(payload), int64(len(payload)), missing)
		assert.ErrorIs(t, err, ErrInvalidCertificate)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := SignFile(filepath.Join(t.TempDir(), "absent.pdf"), data)
		assert.ErrorIs(t, err, ErrInvalidPDF)
	})
}
