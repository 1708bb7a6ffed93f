package sign

import (
	"fmt"
	"strconv"

	"github.com/digitorus/pdf"
)

// createVisualSignature builds the widget annotation of the signature field.
// It is hidden and has a zero sized rectangle; the visible part of the
// signature is the stamp drawn into the page content.
func (context *SignContext) createVisualSignature(page pdf.Value, field_name string) *objectBuffer {
	visual_signature := context.newObject()

	visual_signature.WriteString("<< /Type /Annot")
	visual_signature.WriteString(" /Subtype /Widget")
	visual_signature.WriteString(" /FT /Sig")
	visual_signature.WriteString(" /Rect [0 0 0 0]")
	visual_signature.WriteString(" /V " + strconv.Itoa(int(context.SignData.objectId)) + " 0 R")
	visual_signature.WriteString(" /T ")
	visual_signature.writeText(field_name)

	// Hidden (bit 2) and Print (bit 3) set to 1, as invisible signatures do.
	visual_signature.WriteString(" /F 4")

	visual_signature.WriteString(" /P " + objectRef(page))
	visual_signature.WriteString(" >>")

	return visual_signature
}

// createIncPageUpdate writes a page revision whose /Annots lists the
// existing annotations plus the new widget.
func (context *SignContext) createIncPageUpdate(page pdf.Value, annot uint32) (*objectBuffer, error) {
	annots := page.Key("Annots")
	if !annots.IsNull() && annots.Kind() != pdf.Array {
		return nil, errorf(KindInvalidSignatureField, "page /Annots is not an array")
	}

	ptr := page.GetPtr()
	page_buffer := context.objectRevision(ptr.GetID(), ptr.GetGen())
	page_buffer.WriteString("<<")
	page_buffer.writeDictEntries(page, "Annots")
	page_buffer.WriteString(" /Annots [")
	for i := 0; i < annots.Len(); i++ {
		page_buffer.writeValue(annots, annots.Index(i))
		page_buffer.WriteString(" ")
	}
	fmt.Fprintf(page_buffer, "%d 0 R]", annot)
	page_buffer.WriteString(" >>")

	return page_buffer, nil
}

// signatureFieldName returns SignatureN for the first N above the number of
// existing signature fields that is not taken by any field.
func signatureFieldName(fields pdf.Value) string {
	taken := map[string]bool{}
	signatures := 0
	for i := 0; i < fields.Len(); i++ {
		field := fields.Index(i)
		taken[field.Key("T").Text()] = true
		if field.Key("FT").Name() == "Sig" {
			signatures++
		}
	}

	for n := signatures + 1; ; n++ {
		name := "Signature" + strconv.Itoa(n)
		if !taken[name] {
			return name
		}
	}
}
