package sign

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/digitorus/pdf"
)

// objectBuffer collects the body of one indirect object. Strings and
// streams written through it are encrypted with the key of that object when
// the document is encrypted. The first encryption error sticks.
type objectBuffer struct {
	bytes.Buffer
	id       uint32
	gen      uint16
	security *securityHandler
	err      error
}

// newObject starts the body of a new object.
func (context *SignContext) newObject() *objectBuffer {
	return context.objectRevision(context.allocObjectID(), 0)
}

// objectRevision starts the body of a new revision of object id.
func (context *SignContext) objectRevision(id uint32, gen uint16) *objectBuffer {
	return &objectBuffer{id: id, gen: gen, security: context.security}
}

// writeBuffer appends the object collected in buf and returns the offset of
// its body.
func (context *SignContext) writeBuffer(buf *objectBuffer) (int64, error) {
	if buf.err != nil {
		return 0, fmt.Errorf("failed to encrypt object %d: %w", buf.id, buf.err)
	}
	return context.writeObject(buf.id, buf.gen, buf.Bytes())
}

func (context *SignContext) allocObjectID() uint32 {
	id := context.nextObjectID
	context.nextObjectID++
	return id
}

// writeObject writes "id gen obj ... endobj" at the end of the output buffer,
// registers the xref entry and returns the offset of the object body.
func (context *SignContext) writeObject(id uint32, gen uint16, object []byte) (int64, error) {
	offset := int64(context.OutputBuffer.Buff.Len())
	header := fmt.Sprintf("%d %d obj\n", id, gen)

	if _, err := context.OutputBuffer.Write([]byte(header)); err != nil {
		return 0, fmt.Errorf("failed to write object header: %w", err)
	}
	if _, err := context.OutputBuffer.Write(object); err != nil {
		return 0, fmt.Errorf("failed to write object: %w", err)
	}
	if _, err := context.OutputBuffer.Write([]byte("\nendobj\n")); err != nil {
		return 0, fmt.Errorf("failed to write object footer: %w", err)
	}

	context.xrefEntries = append(context.xrefEntries, xrefEntry{ID: id, Gen: gen, Offset: offset})
	return offset + int64(len(header)), nil
}

func (buf *objectBuffer) encrypt(data []byte) []byte {
	if buf.security == nil || buf.err != nil {
		return data
	}
	encrypted, err := buf.security.encrypt(buf.id, buf.gen, data)
	if err != nil {
		buf.err = err
		return data
	}
	return encrypted
}

// writeStream writes an uncompressed stream.
func (buf *objectBuffer) writeStream(content []byte) {
	content = buf.encrypt(content)
	fmt.Fprintf(buf, "<< /Length %d >>\nstream\n", len(content))
	buf.Write(content)
	buf.WriteString("\nendstream")
}

// writeString writes raw bytes as a hex string.
func (buf *objectBuffer) writeString(raw []byte) {
	buf.WriteString("<" + hex.EncodeToString(buf.encrypt(raw)) + ">")
}

// writeText writes a text string.
func (buf *objectBuffer) writeText(text string) {
	if buf.security == nil {
		buf.WriteString(pdfString(text))
		return
	}
	buf.writeString(textBytes(text))
}

func sameObject(a, b pdf.Value) bool {
	pa, pb := a.GetPtr(), b.GetPtr()
	return pa.GetID() == pb.GetID() && pa.GetGen() == pb.GetGen()
}

// writeValue serializes v as it appears inside parent. A value that lives in
// another indirect object than its parent was reached through a reference and
// is written back as one.
func (buf *objectBuffer) writeValue(parent, v pdf.Value) {
	if ptr := v.GetPtr(); ptr.GetID() != 0 && !sameObject(parent, v) {
		fmt.Fprintf(buf, "%d %d R", ptr.GetID(), ptr.GetGen())
		return
	}
	buf.writeDirect(v)
}

func (buf *objectBuffer) writeDirect(v pdf.Value) {
	switch v.Kind() {
	case pdf.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		buf.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		buf.WriteString(strconv.FormatFloat(v.Float64(), 'f', -1, 64))
	case pdf.String:
		buf.writeString([]byte(v.RawString()))
	case pdf.Name:
		buf.WriteString(pdfName(v.Name()))
	case pdf.Array:
		buf.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteString(" ")
			}
			buf.writeValue(v, v.Index(i))
		}
		buf.WriteString("]")
	case pdf.Dict:
		buf.WriteString("<<")
		buf.writeDictEntries(v)
		buf.WriteString(" >>")
	default:
		// Streams are always indirect, anything else is null.
		buf.WriteString("null")
	}
}

// writeDictEntries writes " /Key value" for every key of dict not listed in skip.
func (buf *objectBuffer) writeDictEntries(dict pdf.Value, skip ...string) {
	for _, key := range dict.Keys() {
		if contains(skip, key) {
			continue
		}
		buf.WriteString(" " + pdfName(key) + " ")
		buf.writeValue(dict, dict.Key(key))
	}
}

// pdfName escapes a name per ISO 32000-1 section 7.3.5.
func pdfName(name string) string {
	var buf bytes.Buffer
	buf.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || bytes.IndexByte([]byte("#()<>[]{}/%"), c) >= 0 {
			fmt.Fprintf(&buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
	return buf.String()
}

// findInherited looks key up on node and its /Parent chain.
func findInherited(node pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 64 && !node.IsNull(); depth++ {
		if v := node.Key(key); !v.IsNull() {
			return v
		}
		node = node.Key("Parent")
	}
	return pdf.Value{}
}

func objectRef(v pdf.Value) string {
	ptr := v.GetPtr()
	return fmt.Sprintf("%d %d R", ptr.GetID(), ptr.GetGen())
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
