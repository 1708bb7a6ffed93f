package sign

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"sort"
)

// writeXref writes the cross-reference section of the increment in the same
// flavour as the document it extends, followed by the trailer.
func (context *SignContext) writeXref() error {
	switch context.PDFReader.XrefInformation.Type {
	case "table":
		if err := context.writeIncrXrefTable(); err != nil {
			return err
		}
		return context.writeTrailer()
	case "stream":
		if err := context.writeXrefStream(); err != nil {
			return err
		}
		return context.writeStartXref()
	default:
		return errorf(KindInvalidPDF, "unknown xref type: %s", context.PDFReader.XrefInformation.Type)
	}
}

// xrefSubsections groups the sorted entries into runs of consecutive object
// numbers.
func (context *SignContext) xrefSubsections() [][]xrefEntry {
	entries := append([]xrefEntry(nil), context.xrefEntries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	var sections [][]xrefEntry
	for _, entry := range entries {
		n := len(sections)
		if n > 0 {
			last := sections[n-1]
			if last[len(last)-1].ID+1 == entry.ID {
				sections[n-1] = append(last, entry)
				continue
			}
		}
		sections = append(sections, []xrefEntry{entry})
	}
	return sections
}

// writeIncrXrefTable writes the incremental cross-reference table to the output buffer.
func (context *SignContext) writeIncrXrefTable() error {
	context.newXrefStart = int64(context.OutputBuffer.Buff.Len())

	if _, err := context.OutputBuffer.Write([]byte("xref\n")); err != nil {
		return fmt.Errorf("failed to write incremental xref header: %w", err)
	}

	for _, section := range context.xrefSubsections() {
		header := fmt.Sprintf("%d %d\n", section[0].ID, len(section))
		if _, err := context.OutputBuffer.Write([]byte(header)); err != nil {
			return fmt.Errorf("failed to write xref subsection header: %w", err)
		}

		for _, entry := range section {
			xrefLine := fmt.Sprintf("%010d %05d n\r\n", entry.Offset, entry.Gen)
			if _, err := context.OutputBuffer.Write([]byte(xrefLine)); err != nil {
				return fmt.Errorf("failed to write incremental xref entry: %w", err)
			}
		}
	}

	return nil
}

// writeXrefStream writes a cross-reference stream object that also covers
// itself. Entries are uncompressed (type 1) with /W [1 4 1].
func (context *SignContext) writeXrefStream() error {
	id := context.allocObjectID()
	context.newXrefStart = int64(context.OutputBuffer.Buff.Len())
	context.xrefEntries = append(context.xrefEntries, xrefEntry{ID: id, Offset: context.newXrefStart})

	var rows bytes.Buffer
	var index bytes.Buffer
	for _, section := range context.xrefSubsections() {
		fmt.Fprintf(&index, " %d %d", section[0].ID, len(section))
		for _, entry := range section {
			if entry.Offset > 0xFFFFFFFF || entry.Gen > 0xFF {
				return errorf(KindInvalidPDF, "xref entry %d does not fit /W [1 4 1]", entry.ID)
			}
			rows.WriteByte(1)
			_ = binary.Write(&rows, binary.BigEndian, uint32(entry.Offset))
			rows.WriteByte(byte(entry.Gen))
		}
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(rows.Bytes()); err != nil {
		return fmt.Errorf("failed to compress xref stream: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress xref stream: %w", err)
	}

	// Cross-reference streams are never encrypted.
	header := &objectBuffer{}
	header.WriteString("<< /Type /XRef")
	fmt.Fprintf(header, " /Size %d", context.trailerSize())
	header.WriteString(" /W [1 4 1]")
	header.WriteString(" /Index [" + index.String()[1:] + "]")
	fmt.Fprintf(header, " /Prev %d", context.PDFReader.XrefInformation.StartPos)
	context.writeTrailerReferences(header)
	header.WriteString(" /Filter /FlateDecode")
	fmt.Fprintf(header, " /Length %d >>\nstream\n", compressed.Len())
	header.Write(compressed.Bytes())
	header.WriteString("\nendstream")

	if _, err := context.writeObject(id, 0, header.Bytes()); err != nil {
		return fmt.Errorf("failed to add xref stream object: %w", err)
	}
	// writeObject registered the entry a second time.
	context.xrefEntries = context.xrefEntries[:len(context.xrefEntries)-1]

	return nil
}
