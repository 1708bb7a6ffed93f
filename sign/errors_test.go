package sign

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitorus/pdfbatchsign/internal/testpki"
)

func TestErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("attempt: %w", errorf(KindInvalidSignatureField, "bad /Fields"))

	assert.ErrorIs(t, err, ErrInvalidSignatureField)
	assert.NotErrorIs(t, err, ErrInvalidPDF)
	assert.Equal(t, KindInvalidSignatureField, KindOf(err))
	assert.Equal(t, "InvalidSignatureField: bad /Fields", errors.Unwrap(err).Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"pkcs12: decryption password incorrect", KindInvalidPassword},
		{"x509: malformed certificate", KindInvalidCertificate},
		{"AcroForm is broken", KindInvalidSignatureField},
		{"signature does not fit", KindInvalidSignature},
		{"malformed PDF: missing xref", KindInvalidPDF},
		{"something else entirely", KindSigningFailed},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(Classify(errors.New(tt.msg))))
		})
	}

	assert.Nil(t, Classify(nil))

	typed := newError(KindInvalidPDF, errors.New("password"))
	assert.Same(t, typed, Classify(typed))
}

func TestLoadCredential(t *testing.T) {
	id := testpki.NewIdentity(t)
	pfx := id.PFX(t, "correct horse")

	credential, err := LoadCredential(pfx, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, id.Certificate.Raw, credential.Certificate.Raw)
	assert.NoError(t, matchCertificate(credential.Signer, credential.Certificate))
	assert.Empty(t, credential.Chain)

	_, err = LoadCredential(pfx, "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.Equal(t, KindInvalidPassword, KindOf(err))

	_, err = LoadCredential([]byte("not a pfx"), "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	_, err = LoadCredentialFile("does-not-exist.pfx", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}
