package srv

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/bitmapfont/v2"
	"github.com/jypelle/tftmirror/internal/srv/device"
	"github.com/jypelle/tftmirror/internal/version"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const glyphWidth = 6

var col = color.RGBA{255, 255, 255, 255}
var uniformImage = image.NewUniform(col)

func AddLabel(img draw.Image, x, y int, label string) {
	point := fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}

	d := &font.Drawer{
		Dst:  img,
		Src:  uniformImage,
		Face: bitmapfont.Face,
		Dot:  point,
	}
	d.DrawString(label)
}

func AddCenteredLabel(img draw.Image, y int, label string) {
	AddLabel(img, (img.Bounds().Dx()-len(label)*glyphWidth)/2, y, label)
}

func splashImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, device.PANEL_WIDTH, device.PANEL_HEIGHT))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 255}}, image.Point{}, draw.Src)

	AddCenteredLabel(img, device.PANEL_HEIGHT/2-8, "tftmirror")
	AddCenteredLabel(img, device.PANEL_HEIGHT/2+16, "v"+version.AppVersion.String())
	// frame
	draw.Draw(img, image.Rect(8, 8, device.PANEL_WIDTH-8, 9), uniformImage, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(8, device.PANEL_HEIGHT-9, device.PANEL_WIDTH-8, device.PANEL_HEIGHT-8), uniformImage, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(8, 8, 9, device.PANEL_HEIGHT-8), uniformImage, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(device.PANEL_WIDTH-9, 8, device.PANEL_WIDTH-8, device.PANEL_HEIGHT-8), uniformImage, image.Point{}, draw.Src)
	return img
}

// showSplash draws the startup screen and keeps it up for the configured duration.
func (s *ServerApp) showSplash() {
	if s.MirrorParam.SplashDuration <= 0 {
		return
	}

	frame := make([]byte, device.FRAME_SIZE)
	device.ImageToRGB565(splashImage(), frame)

	s.displayDevice.Lock()
	s.displayDevice.Draw(frame, 0)
	s.displayDevice.Unlock()

	s.Clock.Sleep(s.MirrorParam.SplashDuration)
}
