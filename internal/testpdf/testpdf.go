// Package testpdf builds small, well formed PDF documents and archives for
// tests.
package testpdf

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// Encryption selects the standard security handler of a generated document.
// Encrypted documents have an empty user password, the owner password
// OwnerPassword and deny modification in /P.
type Encryption int

const (
	NoEncryption Encryption = iota
	// RC4 is /V 2 /R 3 with a 128-bit key.
	RC4
	// AES is /V 4 /R 4 with the AESV2 crypt filter.
	AES
)

const OwnerPassword = "owner"

// Permissions of encrypted documents: print only.
const Permissions = -3900

// DocumentID is the first element of the trailer /ID.
var DocumentID = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

// Options tweak the generated document.
type Options struct {
	// Text is shown on the single page.
	Text string
	// XrefStream writes a cross-reference stream instead of a table.
	XrefStream bool
	// InheritResources moves /Resources and /MediaBox to the page tree node.
	InheritResources bool
	// Annotated adds an existing link annotation to the page.
	Annotated bool
	// Encryption protects strings and streams.
	Encryption Encryption
}

// Minimal returns a one page document with a classic xref table.
func Minimal(text string) []byte {
	return Build(Options{Text: text})
}

// Build returns a one page document. The catalog carries /Lang (en-US) so
// documents always hold at least one string.
func Build(opts Options) []byte {
	if opts.Text == "" {
		opts.Text = "Hello World"
	}
	content := fmt.Sprintf("BT\n/F1 24 Tf\n72 700 Td\n(%s) Tj\nET", opts.Text)
	enc := newEncryptor(opts.Encryption)

	pages := "<< /Type /Pages /Kids [3 0 R] /Count 1 >>"
	page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >>"
	if opts.InheritResources {
		pages = "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 595 842] /Resources << /Font << /F1 5 0 R >> >> >>"
		page = "<< /Type /Page /Parent 2 0 R /Contents 4 0 R"
	}
	if opts.Annotated {
		page += " /Annots [6 0 R]"
	}
	page += " >>"

	stream := enc.encrypt(4, []byte(content))
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R /Lang <" + hex.EncodeToString(enc.encrypt(1, []byte("en-US"))) + "> >>",
		pages,
		page,
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	if opts.Annotated {
		objects = append(objects, "<< /Type /Annot /Subtype /Link /Rect [10 10 20 20] /Border [0 0 0] >>")
	}

	trailer := fmt.Sprintf(" /Root 1 0 R /ID [<%x> <%x>]", DocumentID, DocumentID)
	if enc != nil {
		objects = append(objects, enc.dictionary())
		trailer += fmt.Sprintf(" /Encrypt %d 0 R", len(objects))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	if opts.XrefStream {
		writeXrefStream(&buf, offsets, trailer)
	} else {
		writeXrefTable(&buf, offsets, trailer)
	}
	return buf.Bytes()
}

func writeXrefTable(buf *bytes.Buffer, offsets []int, trailer string) {
	start := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", len(offsets))
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d%s >>\n", len(offsets), trailer)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", start)
}

func writeXrefStream(buf *bytes.Buffer, offsets []int, trailer string) {
	id := len(offsets)
	start := buf.Len()
	offsets = append(offsets, start)

	var rows bytes.Buffer
	for i, off := range offsets {
		if i == 0 {
			rows.Write([]byte{0, 0, 0, 0, 0, 0xff})
			continue
		}
		rows.WriteByte(1)
		_ = binary.Write(&rows, binary.BigEndian, uint32(off))
		rows.WriteByte(0)
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, _ = w.Write(rows.Bytes())
	_ = w.Close()

	fmt.Fprintf(buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1]%s /Filter /FlateDecode /Length %d >>\nstream\n", id, len(offsets), trailer, compressed.Len())
	buf.Write(compressed.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", start)
}

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41, 0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80, 0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// encryptor implements the standard security handler, revision 3 and 4,
// for the empty user password.
type encryptor struct {
	mode  Encryption
	owner []byte
	user  []byte
	key   []byte
}

func newEncryptor(mode Encryption) *encryptor {
	if mode == NoEncryption {
		return nil
	}
	e := &encryptor{mode: mode}

	// Owner entry: the padded user password encrypted with a key derived
	// from the owner password.
	owner := md5.Sum(pad([]byte(OwnerPassword)))
	for i := 0; i < 50; i++ {
		owner = md5.Sum(owner[:])
	}
	e.owner = append([]byte(nil), passwordPadding...)
	rc4Rounds(owner[:], e.owner)

	// File key for the empty user password.
	perms := int32(Permissions)
	p := uint32(perms)
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(e.owner)
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	h.Write(DocumentID)
	key := h.Sum(nil)
	for i := 0; i < 50; i++ {
		sum := md5.Sum(key)
		key = sum[:]
	}
	e.key = key

	// User entry: hash of padding and ID, encrypted in 20 rounds.
	user := md5.Sum(append(append([]byte(nil), passwordPadding...), DocumentID...))
	e.user = append(user[:], make([]byte, 16)...)
	rc4Rounds(e.key, e.user[:16])
	return e
}

func pad(password []byte) []byte {
	return append(append([]byte(nil), password...), passwordPadding[:32-len(password)]...)
}

// rc4Rounds encrypts data with key and then with key XOR 1 up to key XOR 19.
func rc4Rounds(key []byte, data []byte) {
	for i := 0; i < 20; i++ {
		round := make([]byte, len(key))
		for j := range key {
			round[j] = key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(round)
		c.XORKeyStream(data, data)
	}
}

func (e *encryptor) dictionary() string {
	head := "<< /Filter /Standard /V 2 /R 3 /Length 128"
	if e.mode == AES {
		head = "<< /Filter /Standard /V 4 /R 4 /Length 128 /CF << /StdCF << /CFM /AESV2 /AuthEvent /DocOpen /Length 16 >> >> /StmF /StdCF /StrF /StdCF"
	}
	return fmt.Sprintf("%s /O <%x> /U <%x> /P %d >>", head, e.owner, e.user, Permissions)
}

// encrypt encrypts data of object id, generation 0. A nil encryptor
// returns data unchanged.
func (e *encryptor) encrypt(id int, data []byte) []byte {
	if e == nil {
		return data
	}

	h := md5.New()
	h.Write(e.key)
	h.Write([]byte{byte(id), byte(id >> 8), byte(id >> 16), 0, 0})
	if e.mode == AES {
		h.Write([]byte("sAlT"))
	}
	key := h.Sum(nil)

	if e.mode == RC4 {
		out := make([]byte, len(data))
		c, _ := rc4.NewCipher(key)
		c.XORKeyStream(out, data)
		return out
	}

	// A fixed IV keeps the fixture deterministic.
	block, _ := aes.NewCipher(key)
	n := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize, aes.BlockSize+len(data)+n)
	out = append(out, data...)
	out = append(out, bytes.Repeat([]byte{byte(n)}, n)...)
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], out[aes.BlockSize:])
	return out
}

// Zip packs files into an archive. Keys are slash separated paths; a key
// ending in "/" creates a directory entry.
func Zip(t testing.TB, files map[string][]byte) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteTree writes files below root. Keys are slash separated paths.
func WriteTree(t testing.TB, root string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}
