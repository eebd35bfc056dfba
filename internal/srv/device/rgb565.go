package device

import (
	"image"
	"image/color"
)

// EncodeRGB565 packs a colour into 5-6-5 bits.
func EncodeRGB565(c color.Color) uint16 {
	r, g, b, _ := c.RGBA()
	return uint16(r>>11)<<11 | uint16(g>>10)<<5 | uint16(b>>11)
}

// DecodeRGB565 expands 5-6-5 bits, replicating the high bits into the low ones.
func DecodeRGB565(v uint16) color.RGBA {
	r := uint8(v >> 11 & 0x1f)
	g := uint8(v >> 5 & 0x3f)
	b := uint8(v & 0x1f)
	return color.RGBA{
		R: r<<3 | r>>2,
		G: g<<2 | g>>4,
		B: b<<3 | b>>2,
		A: 0xff,
	}
}

// ImageToRGB565 writes img as little-endian 5-6-5 pixels into dst, row after row.
// Pixels outside dst are dropped.
func ImageToRGB565(img image.Image, dst []byte) {
	bounds := img.Bounds()
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if i+1 >= len(dst) {
				return
			}
			v := EncodeRGB565(img.At(x, y))
			dst[i] = byte(v)
			dst[i+1] = byte(v >> 8)
			i += 2
		}
	}
}
