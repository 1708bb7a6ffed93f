package sign

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"os"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var (
	ErrNilSigner      = errors.New("signer cannot be nil")
	ErrNilCertificate = errors.New("certificate cannot be nil")
	ErrKeyMismatch    = errors.New("signer public key does not match certificate")
)

// LoadCredential decodes a PKCS#12 (PFX) bundle. A wrong password yields an
// error of KindInvalidPassword, anything else that prevents using the bundle
// yields KindInvalidCertificate.
func LoadCredential(pfx []byte, password string) (*Credential, error) {
	key, cert, ca_certs, err := pkcs12.DecodeChain(pfx, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, newError(KindInvalidPassword, err)
		}
		return nil, errorf(KindInvalidCertificate, "failed to decode pkcs12: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errorf(KindInvalidCertificate, "private key of type %T cannot sign", key)
	}

	if err := matchCertificate(signer, cert); err != nil {
		return nil, newError(KindInvalidCertificate, err)
	}

	return &Credential{
		Signer:      signer,
		Certificate: cert,
		Chain:       ca_certs,
	}, nil
}

// LoadCredentialFile reads a PFX file from disk and decodes it.
func LoadCredentialFile(path string, password string) (*Credential, error) {
	pfx, err := os.ReadFile(path)
	if err != nil {
		return nil, errorf(KindInvalidCertificate, "failed to read certificate: %w", err)
	}
	return LoadCredential(pfx, password)
}

func (c *Credential) validate() error {
	if c == nil || c.Certificate == nil {
		return newError(KindInvalidCertificate, ErrNilCertificate)
	}
	if c.Signer == nil {
		return newError(KindInvalidCertificate, ErrNilSigner)
	}
	if err := matchCertificate(c.Signer, c.Certificate); err != nil {
		return newError(KindInvalidCertificate, err)
	}
	return nil
}

// matchCertificate checks that signer holds the private half of the
// certificate key.
func matchCertificate(signer crypto.Signer, cert *x509.Certificate) error {
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}

// signatureSize is the largest raw signature the key behind pub produces.
// Unknown key types get 512 bytes.
func signatureSize(pub crypto.PublicKey) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N != nil {
			return k.Size()
		}
	case *ecdsa.PublicKey:
		if k.Curve != nil {
			// DER SEQUENCE { r INTEGER, s INTEGER }, RFC 3279 section 2.2.3.
			return 2*((k.Curve.Params().BitSize+7)/8) + 9
		}
	case ed25519.PublicKey:
		return ed25519.SignatureSize
	}
	return 512
}
