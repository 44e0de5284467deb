// Package imaging converts analyzer BMP captures to JPEG before they are
// stored or shipped.
package imaging

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"golang.org/x/image/bmp"
)

const jpegQuality = 85

// IsBMP reports whether buf starts with the BMP magic.
func IsBMP(buf []byte) bool {
	return len(buf) >= 2 && buf[0] == 'B' && buf[1] == 'M'
}

// EscapeBMP transcodes BMP content to JPEG. Non-BMP content passes through
// untouched; content with a BMP magic that fails to decode is an error.
func EscapeBMP(buf []byte) ([]byte, error) {
	if !IsBMP(buf) {
		return buf, nil
	}

	img, err := bmp.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decoding bmp: %w", err)
	}

	var out bytes.Buffer
	if err = jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return out.Bytes(), nil
}
