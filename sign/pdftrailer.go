package sign

import (
	"fmt"
	"strconv"
)

// trailerSize is one more than the highest object number in use.
func (context *SignContext) trailerSize() int64 {
	size := context.PDFReader.Trailer().Key("Size").Int64()
	if next := int64(context.nextObjectID); next > size {
		size = next
	}
	return size
}

// writeTrailerReferences copies /Root, /Info, /ID and /Encrypt from the
// previous trailer. The catalog keeps its object number across revisions, so
// /Root is unchanged. Trailer strings are never encrypted.
func (context *SignContext) writeTrailerReferences(buf *objectBuffer) {
	trailer := context.PDFReader.Trailer()
	for _, key := range []string{"Root", "Info", "ID", "Encrypt"} {
		value := trailer.Key(key)
		if value.IsNull() {
			continue
		}
		buf.WriteString(" /" + key + " ")
		buf.writeValue(trailer, value)
	}
}

func (context *SignContext) writeTrailer() error {
	trailer := &objectBuffer{}
	trailer.WriteString("trailer\n<<")
	fmt.Fprintf(trailer, " /Size %d", context.trailerSize())
	context.writeTrailerReferences(trailer)
	fmt.Fprintf(trailer, " /Prev %d", context.PDFReader.XrefInformation.StartPos)
	trailer.WriteString(" >>\n")

	if _, err := context.OutputBuffer.Write(trailer.Bytes()); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	return context.writeStartXref()
}

func (context *SignContext) writeStartXref() error {
	if _, err := context.OutputBuffer.Write([]byte("startxref\n" + strconv.FormatInt(context.newXrefStart, 10) + "\n%%EOF\n")); err != nil {
		return fmt.Errorf("failed to write startxref: %w", err)
	}
	return nil
}
