package sign

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"fmt"

	"github.com/digitorus/pdf"
)

// passwordPadding pads passwords to 32 bytes (ISO 32000-1, 7.6.3.3).
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// securityHandler encrypts the strings and streams of appended objects for a
// document protected by the standard security handler. Permission flags are
// not enforced: a document that opens without a user password can be signed.
type securityHandler struct {
	key     []byte
	version int64
	aes     bool
}

// newSecurityHandler returns nil for documents without /Encrypt.
func newSecurityHandler(trailer pdf.Value) (*securityHandler, error) {
	encrypt := trailer.Key("Encrypt")
	if encrypt.IsNull() {
		return nil, nil
	}
	if encrypt.Kind() != pdf.Dict {
		return nil, errorf(KindInvalidPDF, "/Encrypt is not a dictionary")
	}
	if filter := encrypt.Key("Filter").Name(); filter != "Standard" {
		return nil, errorf(KindInvalidPDF, "unsupported security handler %q", filter)
	}

	version := encrypt.Key("V").Int64()
	switch version {
	case 1, 2, 4:
		key, err := fileKey(encrypt, trailer.Key("ID").Index(0).RawString())
		if err != nil {
			return nil, err
		}
		return &securityHandler{key: key, version: version, aes: version == 4}, nil
	case 5:
		key, err := aes256FileKey(encrypt)
		if err != nil {
			return nil, err
		}
		return &securityHandler{key: key, version: version, aes: true}, nil
	default:
		return nil, errorf(KindInvalidPDF, "unsupported encryption version %d", version)
	}
}

// fileKey computes the file encryption key for the empty user password
// (ISO 32000-1, 7.6.3.3, algorithm 2).
func fileKey(encrypt pdf.Value, id string) ([]byte, error) {
	revision := encrypt.Key("R").Int64()
	if revision < 2 || revision > 4 {
		return nil, errorf(KindInvalidPDF, "unsupported encryption revision %d", revision)
	}

	bits := encrypt.Key("Length").Int64()
	switch {
	case revision == 2:
		bits = 40
	case encrypt.Key("V").Int64() == 4:
		bits = 128
	case bits == 0:
		bits = 40
	}
	if bits%8 != 0 || bits < 40 || bits > 128 {
		return nil, errorf(KindInvalidPDF, "invalid encryption key length %d", bits)
	}
	n := int(bits / 8)

	owner := encrypt.Key("O").RawString()
	if len(owner) != 32 {
		return nil, errorf(KindInvalidPDF, "invalid /O entry in /Encrypt")
	}
	p := uint32(encrypt.Key("P").Int64())

	h := md5.New()
	h.Write(passwordPadding)
	h.Write([]byte(owner))
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write([]byte(id))
	if meta := encrypt.Key("EncryptMetadata"); revision >= 4 && meta.Kind() == pdf.Bool && !meta.Bool() {
		h.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	key := h.Sum(nil)

	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
	}
	return key[:n], nil
}

// aes256FileKey unwraps the AES-256 file key with the empty password, trying
// the user entry first and the owner entry second.
func aes256FileKey(encrypt pdf.Value) ([]byte, error) {
	for _, names := range [][2]string{{"U", "UE"}, {"O", "OE"}} {
		entry := []byte(encrypt.Key(names[0]).RawString())
		wrapped := []byte(encrypt.Key(names[1]).RawString())
		if len(entry) != 48 || len(wrapped) != 32 {
			continue
		}

		// Hash, validation salt and key salt.
		check := sha256.Sum256(entry[32:40])
		if !bytes.Equal(check[:], entry[:32]) {
			continue
		}

		kek := sha256.Sum256(entry[40:48])
		block, err := aes.NewCipher(kek[:])
		if err != nil {
			return nil, err
		}
		key := make([]byte, len(wrapped))
		cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(key, wrapped)
		return key, nil
	}
	return nil, errorf(KindInvalidPDF, "document requires a password")
}

// objectKey derives the key of one object (algorithm 1). AES-256 uses the
// file key for every object.
func (h *securityHandler) objectKey(id uint32, gen uint16) []byte {
	if h.version == 5 {
		return h.key
	}

	d := md5.New()
	d.Write(h.key)
	d.Write([]byte{byte(id), byte(id >> 8), byte(id >> 16), byte(gen), byte(gen >> 8)})
	if h.aes {
		d.Write([]byte("sAlT"))
	}
	return d.Sum(nil)[:min(len(h.key)+5, 16)]
}

// encrypt returns data encrypted for object id. AES output is the random IV
// followed by the PKCS#7 padded cipher text.
func (h *securityHandler) encrypt(id uint32, gen uint16, data []byte) ([]byte, error) {
	key := h.objectKey(id, gen)

	if !h.aes {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("rc4: %w", err)
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize+len(data)+pad)
	if _, err := rand.Read(out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	copy(out[aes.BlockSize:], data)
	copy(out[aes.BlockSize+len(data):], bytes.Repeat([]byte{byte(pad)}, pad))
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], out[aes.BlockSize:])
	return out, nil
}
