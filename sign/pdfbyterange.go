package sign

import (
	"fmt"
	"strings"
)

// updateByteRange computes the ByteRange from the final layout and patches
// it over the placeholder. The gap spans the /Contents hex string including
// its angle brackets.
func (context *SignContext) updateByteRange() error {
	output_file_size := int64(context.OutputBuffer.Buff.Len())

	context.ByteRangeValues = make([]int64, 4)

	// Part 1 starts at the first byte and stops right before the '<'.
	context.ByteRangeValues[0] = int64(0)
	context.ByteRangeValues[1] = context.signatureContentsStartByte

	// Part 2 starts right after the '>' and runs to the end of the file.
	context.ByteRangeValues[2] = context.ByteRangeValues[1] + int64(context.SignatureMaxLength) + 2
	context.ByteRangeValues[3] = output_file_size - context.ByteRangeValues[2]

	new_byte_range := fmt.Sprintf("/ByteRange[%d %d %d %d]", context.ByteRangeValues[0], context.ByteRangeValues[1], context.ByteRangeValues[2], context.ByteRangeValues[3])
	if len(new_byte_range) > len(signatureByteRangePlaceholder) {
		return errorf(KindInvalidPDF, "byte range %q does not fit its placeholder", new_byte_range)
	}

	// The ByteRange string must keep the length of the placeholder.
	new_byte_range += strings.Repeat(" ", len(signatureByteRangePlaceholder)-len(new_byte_range))

	copy(context.OutputBuffer.Buff.Bytes()[context.byteRangeStartByte:], new_byte_range)

	return nil
}
