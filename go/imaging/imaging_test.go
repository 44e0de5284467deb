package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func sampleBMP(t *testing.T) []byte {
	t.Helper()
	var img = image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func TestBMPTranscodedToJPEG(t *testing.T) {
	var in = sampleBMP(t)
	require.True(t, IsBMP(in))

	out, err := EscapeBMP(in)
	require.NoError(t, err)
	require.False(t, IsBMP(out))

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 8, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())
}

func TestNonBMPPassesThrough(t *testing.T) {
	var in = []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	out, err := EscapeBMP(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestCorruptBMPIsAnError(t *testing.T) {
	var in = []byte{'B', 'M', 0, 1, 2}
	_, err := EscapeBMP(in)
	require.Error(t, err)
}
