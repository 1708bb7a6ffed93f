package sign

import (
	"fmt"

	"github.com/digitorus/pdf"
)

// acroFormFields returns the /Fields array of the document's AcroForm, or a
// null value when there is none.
func acroFormFields(root pdf.Value) (pdf.Value, error) {
	acro_form := root.Key("AcroForm")
	if acro_form.IsNull() {
		return pdf.Value{}, nil
	}
	if acro_form.Kind() != pdf.Dict {
		return pdf.Value{}, errorf(KindInvalidSignatureField, "/AcroForm is not a dictionary")
	}
	fields := acro_form.Key("Fields")
	if !fields.IsNull() && fields.Kind() != pdf.Array {
		return pdf.Value{}, errorf(KindInvalidSignatureField, "/AcroForm /Fields is not an array")
	}
	return fields, nil
}

// createCatalog writes a new revision of the catalog under its existing object
// number. Every entry is kept; the AcroForm is rewritten as a direct
// dictionary that keeps its own entries, appends the widget to /Fields and
// sets /SigFlags.
func (context *SignContext) createCatalog(root pdf.Value, widget uint32) (*objectBuffer, error) {
	fields, err := acroFormFields(root)
	if err != nil {
		return nil, err
	}
	acro_form := root.Key("AcroForm")

	ptr := root.GetPtr()
	catalog := context.objectRevision(ptr.GetID(), ptr.GetGen())
	catalog.WriteString("<<")
	catalog.writeDictEntries(root, "AcroForm")

	catalog.WriteString(" /AcroForm <<")
	if !acro_form.IsNull() {
		catalog.writeDictEntries(acro_form, "Fields", "SigFlags")
	}

	catalog.WriteString(" /Fields [")
	for i := 0; i < fields.Len(); i++ {
		catalog.writeValue(fields, fields.Index(i))
		catalog.WriteString(" ")
	}
	fmt.Fprintf(catalog, "%d 0 R]", widget)

	// Signature flags (Table 225): SignaturesExist and AppendOnly.
	catalog.WriteString(" /SigFlags 3")

	catalog.WriteString(" >>") // close AcroForm
	catalog.WriteString(" >>") // close catalog

	return catalog, nil
}
