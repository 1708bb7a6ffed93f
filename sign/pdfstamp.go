package sign

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/digitorus/pdf"
)

const (
	stampFontSize   = 8
	stampMarginLeft = 1
	stampMarginTop  = 8
	stampGray       = "0.128"
)

// defaultMediaBox is US Letter, used when a page carries no usable MediaBox.
var defaultMediaBox = [4]float64{0, 0, 612, 792}

// addStamp writes the stamp increment: a Helvetica font, a stream saving the
// graphics state, a stream drawing the stamp text and a new revision of the
// first page that wraps its original content between the two.
func (context *SignContext) addStamp(page pdf.Value) error {
	font := context.newObject()
	font.WriteString("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	if _, err := context.writeBuffer(font); err != nil {
		return fmt.Errorf("failed to add stamp font: %w", err)
	}

	original_contents := contentRefs(page)

	save := context.newObject()
	save.writeStream([]byte("q"))
	if _, err := context.writeBuffer(save); err != nil {
		return fmt.Errorf("failed to add stamp prologue: %w", err)
	}

	font_name := stampFontName(findInherited(page, "Resources").Key("Font"))
	stamp := context.newObject()
	stamp.writeStream(stampContent(page, font_name, context.SignData.Stamp.Text))
	if _, err := context.writeBuffer(stamp); err != nil {
		return fmt.Errorf("failed to add stamp content: %w", err)
	}

	var contents bytes.Buffer
	contents.WriteString("[" + strconv.Itoa(int(save.id)) + " 0 R")
	for _, ref := range original_contents {
		contents.WriteString(" " + ref)
	}
	contents.WriteString(" " + strconv.Itoa(int(stamp.id)) + " 0 R]")

	ptr := page.GetPtr()
	page_buffer := context.objectRevision(ptr.GetID(), ptr.GetGen())
	page_buffer.WriteString("<<")
	page_buffer.writeDictEntries(page, "Contents", "Resources")
	page_buffer.WriteString(" /Contents " + contents.String())
	page_buffer.WriteString(" /Resources ")
	page_buffer.writeStampResources(findInherited(page, "Resources"), font_name, font.id)
	page_buffer.WriteString(" >>")

	if _, err := context.writeBuffer(page_buffer); err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}
	return nil
}

// stampContent draws the text. The leading Q closes the q stream that now
// precedes the original content, so the stamp starts from a clean state.
func stampContent(page pdf.Value, font_name string, text string) []byte {
	box := mediaBox(page)
	left := min(box[0], box[2])
	top := max(box[1], box[3])

	var buf bytes.Buffer
	buf.WriteString("Q\nq\nBT\n")
	fmt.Fprintf(&buf, "%s %d Tf\n", pdfName(font_name), stampFontSize)
	fmt.Fprintf(&buf, "%s %s %s rg\n", stampGray, stampGray, stampGray)
	fmt.Fprintf(&buf, "1 0 0 1 %s %s Tm\n", formatNumber(left+stampMarginLeft), formatNumber(top-stampMarginTop))
	buf.WriteString(pdfLiteral(winAnsi(text)) + " Tj\n")
	buf.WriteString("ET\nQ")
	return buf.Bytes()
}

func mediaBox(page pdf.Value) [4]float64 {
	box := findInherited(page, "MediaBox")
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return defaultMediaBox
	}
	var out [4]float64
	for i := range out {
		out[i] = box.Index(i).Float64()
	}
	return out
}

// contentRefs returns the references of the page content streams in order.
func contentRefs(page pdf.Value) []string {
	contents := page.Key("Contents")
	switch contents.Kind() {
	case pdf.Stream:
		return []string{objectRef(contents)}
	case pdf.Array:
		var refs []string
		for i := 0; i < contents.Len(); i++ {
			if item := contents.Index(i); item.Kind() == pdf.Stream {
				refs = append(refs, objectRef(item))
			}
		}
		return refs
	}
	return nil
}

// stampFontName picks a resource name not used by fonts.
func stampFontName(fonts pdf.Value) string {
	for i := 1; ; i++ {
		name := "StampF" + strconv.Itoa(i)
		if fonts.Key(name).IsNull() {
			return name
		}
	}
}

// writeStampResources writes resources as a direct dictionary with the stamp
// font added to /Font. Inherited entries are copied so the page is self
// contained.
func (buf *objectBuffer) writeStampResources(resources pdf.Value, font_name string, font_id uint32) {
	buf.WriteString("<<")
	if resources.Kind() == pdf.Dict {
		buf.writeDictEntries(resources, "Font")
	}
	buf.WriteString(" /Font <<")
	if fonts := resources.Key("Font"); fonts.Kind() == pdf.Dict {
		buf.writeDictEntries(fonts, font_name)
	}
	fmt.Fprintf(buf, " %s %d 0 R >> >>", pdfName(font_name), font_id)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
