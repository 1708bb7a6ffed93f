// Package testpki generates throwaway signing identities for tests.
package testpki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Identity is a self-signed certificate and its key.
type Identity struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
}

var (
	shared     *Identity
	sharedErr  error
	sharedOnce sync.Once
)

// NewIdentity returns a self-signed RSA-2048 identity. Key generation is slow,
// so one identity is shared by all callers in a test binary.
func NewIdentity(t testing.TB) *Identity {
	t.Helper()
	sharedOnce.Do(func() {
		shared, sharedErr = generate("pdfbatchsign test signer")
	})
	if sharedErr != nil {
		t.Fatalf("generate identity: %v", sharedErr)
	}
	return shared
}

// NewUniqueIdentity returns a freshly generated identity.
func NewUniqueIdentity(t testing.TB, commonName string) *Identity {
	t.Helper()
	id, err := generate(commonName)
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return id
}

func generate(commonName string) (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Digitorus"},
			Country:      []string{"NL"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &Identity{Key: key, Certificate: cert}, nil
}

// PFX encodes the identity as a password protected PKCS#12 bundle.
func (id *Identity) PFX(t testing.TB, password string) []byte {
	t.Helper()
	pfx, err := pkcs12.Modern.Encode(id.Key, id.Certificate, nil, password)
	if err != nil {
		t.Fatalf("encode pfx: %v", err)
	}
	return pfx
}

// WritePFX writes the PFX bundle into dir and returns its path.
func (id *Identity) WritePFX(t testing.TB, dir string, password string) string {
	t.Helper()
	path := filepath.Join(dir, "identity.pfx")
	if err := os.WriteFile(path, id.PFX(t, password), 0o600); err != nil {
		t.Fatalf("write pfx: %v", err)
	}
	return path
}
