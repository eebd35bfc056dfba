package mirror

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/jypelle/tftmirror/internal/srv/device"
)

const cursorRadius = 4

// cursorTracker hides the cursor once the pointer stayed still for threshold frames.
type cursorTracker struct {
	threshold int
	idle      int
	last      image.Point
	seen      bool
}

// Update accounts one live frame with the pointer at p and tells whether the cursor is drawn on it.
// The decision uses the idle count before p is accounted: the frame moving the pointer after a
// long idle is still bare, the next one shows the cursor again.
func (c *cursorTracker) Update(p image.Point) bool {
	visible := c.idle < c.threshold

	if !c.seen || p != c.last {
		c.idle = 0
	} else if c.idle < c.threshold {
		c.idle++
	}
	c.last = p
	c.seen = true

	return visible
}

type glyphPixel struct {
	dx, dy int
	value  uint16
}

// cursorGlyph is a light disc with a dark outline, centred on the pointer.
var cursorGlyph = rasterizeCursor(cursorRadius)

func rasterizeCursor(radius int) []glyphPixel {
	size := 2*radius + 3
	center := float64(size) / 2

	dc := gg.NewContext(size, size)
	dc.DrawCircle(center, center, float64(radius))
	dc.SetRGB(1, 1, 1)
	dc.FillPreserve()
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1.5)
	dc.Stroke()

	img := dc.Image()
	var glyph []glyphPixel
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A < 0x80 {
				continue
			}
			c.A = 0xff
			glyph = append(glyph, glyphPixel{
				dx:    x - size/2,
				dy:    y - size/2,
				value: device.EncodeRGB565(c),
			})
		}
	}
	return glyph
}

// drawCursor writes the glyph into a little-endian 16 bit frame, clipped at the panel edges.
func drawCursor(frame []byte, p image.Point) {
	for _, px := range cursorGlyph {
		x := p.X + px.dx
		y := p.Y + px.dy
		if x < 0 || y < 0 || x >= device.PANEL_WIDTH || y >= device.PANEL_HEIGHT {
			continue
		}
		i := (y*device.PANEL_WIDTH + x) * 2
		frame[i] = byte(px.value)
		frame[i+1] = byte(px.value >> 8)
	}
}
