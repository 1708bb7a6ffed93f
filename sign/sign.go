package sign

import (
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

// SignFile signs the PDF at input and returns the signed document.
func SignFile(input string, sign_data SignData) ([]byte, error) {
	input_file, err := os.Open(input)
	if err != nil {
		return nil, errorf(KindInvalidPDF, "failed to open input: %w", err)
	}
	defer func() {
		_ = input_file.Close()
	}()

	finfo, err := input_file.Stat()
	if err != nil {
		return nil, errorf(KindInvalidPDF, "failed to stat input: %w", err)
	}

	return Sign(input_file, finfo.Size(), sign_data)
}

// SignFileTo signs the PDF at input and writes the result to output. The
// input file is never modified.
func SignFileTo(input string, output string, sign_data SignData) error {
	signed, err := SignFile(input, sign_data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, signed, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	return nil
}

// Sign adds a visible stamp and an approval signature to the document read
// from input, appending two incremental updates. The first carries the stamp,
// the second the signature field, so the signed byte range covers the stamp.
func Sign(input io.ReadSeeker, size int64, sign_data SignData) (signed []byte, err error) {
	// The parser panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			signed = nil
			err = errorf(KindInvalidPDF, "malformed pdf: %v", r)
		}
	}()

	if _, err := input.Seek(0, io.SeekStart); err != nil {
		return nil, errorf(KindInvalidPDF, "failed to seek input: %w", err)
	}
	original, err := io.ReadAll(io.LimitReader(input, size))
	if err != nil {
		return nil, errorf(KindInvalidPDF, "failed to read input: %w", err)
	}

	if err := sign_data.Credential.validate(); err != nil {
		return nil, err
	}
	if !sign_data.DigestAlgorithm.Available() {
		sign_data.DigestAlgorithm = crypto.SHA256
	}
	if sign_data.SignatureSize <= 0 {
		sign_data.SignatureSize = DefaultSignatureSize
	}
	if sign_data.Signature.Info.Reason == "" {
		sign_data.Signature.Info.Reason = DefaultReason
	}
	if sign_data.Signature.Info.Date.IsZero() {
		sign_data.Signature.Info.Date = time.Now()
	}

	context := &SignContext{SignData: sign_data}

	stamped, err := context.stampPDF(original)
	if err != nil {
		return nil, err
	}

	return context.SignPDF(stamped)
}

// begin opens document and prepares an increment on top of it.
func (context *SignContext) begin(document []byte) (pdf.Value, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return pdf.Value{}, errorf(KindInvalidPDF, "document requires a password: %w", err)
	}
	if err != nil {
		return pdf.Value{}, errorf(KindInvalidPDF, "failed to parse pdf: %w", err)
	}

	// Encryption that still lets the document open is no obstacle; new
	// objects are encrypted the same way.
	security, err := newSecurityHandler(rdr.Trailer())
	if err != nil {
		return pdf.Value{}, err
	}
	if rdr.NumPage() < 1 {
		return pdf.Value{}, errorf(KindInvalidPDF, "document has no pages")
	}
	page := rdr.Page(1).V
	if page.GetPtr().GetID() == 0 {
		return pdf.Value{}, errorf(KindInvalidPDF, "first page is not an indirect object")
	}
	root := rdr.Trailer().Key("Root")
	if root.Kind() != pdf.Dict || root.GetPtr().GetID() == 0 {
		return pdf.Value{}, errorf(KindInvalidPDF, "document catalog is missing")
	}

	context.PDFReader = rdr
	context.security = security
	context.xrefEntries = nil
	context.nextObjectID = uint32(rdr.Trailer().Key("Size").Int64())
	if context.nextObjectID == 0 {
		context.nextObjectID = uint32(rdr.XrefInformation.ItemCount)
	}

	// Copy old file into new buffer.
	context.OutputBuffer = filebuffer.New([]byte{})
	if _, err := context.OutputBuffer.Write(document); err != nil {
		return pdf.Value{}, err
	}

	// File always needs an empty line after %%EOF.
	if !bytes.HasSuffix(document, []byte("\n")) {
		if _, err := context.OutputBuffer.Write([]byte("\n")); err != nil {
			return pdf.Value{}, err
		}
	}

	return page, nil
}

// stampPDF writes the stamp increment and returns the resulting document.
func (context *SignContext) stampPDF(original []byte) ([]byte, error) {
	page, err := context.begin(original)
	if err != nil {
		return nil, err
	}

	if err := context.addStamp(page); err != nil {
		return nil, errorf(KindInvalidPDF, "failed to stamp page: %w", err)
	}

	if err := context.writeXref(); err != nil {
		return nil, wrapKind(KindInvalidPDF, "failed to write stamp xref", err)
	}

	return context.OutputBuffer.Buff.Bytes(), nil
}

// SignPDF writes the signature increment on top of document, fills in the
// ByteRange and the CMS blob and returns the signed document.
func (context *SignContext) SignPDF(document []byte) ([]byte, error) {
	page, err := context.begin(document)
	if err != nil {
		return nil, err
	}

	root := context.PDFReader.Trailer().Key("Root")
	fields, err := acroFormFields(root)
	if err != nil {
		return nil, err
	}

	// Reserve the placeholder before anything depends on the layout.
	estimate, err := context.estimateSignatureSize()
	if err != nil {
		return nil, newError(KindInvalidCertificate, err)
	}
	reserved := context.SignData.SignatureSize
	if context.SignData.TSA.URL != "" {
		reserved += tsaAllowance
	}
	if estimate > reserved {
		return nil, errorf(KindInvalidSignature, "expected signature of %d bytes exceeds the %d byte placeholder", estimate, reserved)
	}
	context.SignatureMaxLength = uint32(hex.EncodedLen(reserved))

	// Write the new signature object
	context.SignData.objectId = context.allocObjectID()
	signature_object, byte_range_start, contents_start := context.createSignaturePlaceholder()
	body_offset, err := context.writeBuffer(signature_object)
	if err != nil {
		return nil, wrapKind(KindInvalidSignatureField, "failed to add signature object", err)
	}
	context.byteRangeStartByte = body_offset + byte_range_start
	context.signatureContentsStartByte = body_offset + contents_start

	// Write the widget annotation
	widget := context.createVisualSignature(page, signatureFieldName(fields))
	if _, err := context.writeBuffer(widget); err != nil {
		return nil, wrapKind(KindInvalidSignatureField, "failed to add visual signature object", err)
	}

	page_update, err := context.createIncPageUpdate(page, widget.id)
	if err != nil {
		return nil, err
	}
	if _, err := context.writeBuffer(page_update); err != nil {
		return nil, wrapKind(KindInvalidSignatureField, "failed to add incremental page update object", err)
	}

	catalog, err := context.createCatalog(root, widget.id)
	if err != nil {
		return nil, err
	}
	if _, err := context.writeBuffer(catalog); err != nil {
		return nil, wrapKind(KindInvalidSignatureField, "failed to add catalog object", err)
	}

	if err := context.writeXref(); err != nil {
		return nil, wrapKind(KindInvalidPDF, "failed to write xref", err)
	}

	if err := context.updateByteRange(); err != nil {
		return nil, err
	}

	if err := context.replaceSignature(); err != nil {
		return nil, err
	}

	return context.OutputBuffer.Buff.Bytes(), nil
}

// wrapKind annotates err and gives it kind unless it already carries one.
func wrapKind(kind Kind, msg string, err error) error {
	if k := KindOf(err); k != KindUnknown {
		return &Error{Kind: k, Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return &Error{Kind: kind, Err: fmt.Errorf("%s: %w", msg, err)}
}
