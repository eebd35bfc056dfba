package mirror

import (
	"image"
	"testing"

	"github.com/jypelle/tftmirror/internal/srv/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCursorTracker_HidesAfterIdleFrames(t *testing.T) {
	t.Parallel()

	tracker := cursorTracker{threshold: 300}
	p := image.Pt(10, 10)

	// first frame plus 300 still frames are drawn
	for i := 0; i <= 300; i++ {
		require.True(t, tracker.Update(p), "frame %d", i)
	}
	assert.False(t, tracker.Update(p))
	assert.False(t, tracker.Update(p))

	// the moving frame is still bare, the next one is drawn
	assert.False(t, tracker.Update(image.Pt(11, 10)))
	assert.True(t, tracker.Update(image.Pt(11, 10)))
}

func TestCursorTracker_MatchesModel(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 20).Draw(t, "threshold")
		tracker := cursorTracker{threshold: threshold}

		// length of the current run of identical positions, first frame included
		run := 0
		var last image.Point
		frames := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 200).Draw(t, "frames")
		for i, x := range frames {
			p := image.Pt(x, 0)
			moved := i == 0 || p != last

			visible := tracker.Update(p)

			var want bool
			if moved {
				// bare only when the previous run was long enough to hide the cursor
				want = i == 0 || run <= threshold
				run = 1
			} else {
				want = run <= threshold
				run++
			}
			if visible != want {
				t.Fatalf("frame %d at %v: visible=%v want=%v (run %d, threshold %d)", i, p, visible, want, run, threshold)
			}
			last = p
		}
	})
}

func TestDrawCursor(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, cursorGlyph)

	frame := make([]byte, device.FRAME_SIZE)
	drawCursor(frame, image.Pt(100, 100))

	// centre is light
	center := frame[(100*device.PANEL_WIDTH+100)*2:]
	assert.Equal(t, uint16(0xffff), uint16(center[0])|uint16(center[1])<<8)

	// far away pixels untouched
	assert.Equal(t, byte(0), frame[(50*device.PANEL_WIDTH+50)*2])

	var dark bool
	for _, px := range cursorGlyph {
		assert.LessOrEqual(t, px.dx*px.dx+px.dy*px.dy, (cursorRadius+2)*(cursorRadius+2))
		if px.value == 0 {
			dark = true
		}
	}
	assert.True(t, dark, "glyph has an outline")
}

func TestDrawCursor_ClipsAtEdges(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		frame := make([]byte, device.FRAME_SIZE)
		p := image.Pt(
			rapid.IntRange(-20, device.PANEL_WIDTH+20).Draw(t, "x"),
			rapid.IntRange(-20, device.PANEL_HEIGHT+20).Draw(t, "y"),
		)
		drawCursor(frame, p)
	})

	frame := make([]byte, device.FRAME_SIZE)
	drawCursor(frame, image.Pt(0, 0))
	assert.Equal(t, uint16(0xffff), uint16(frame[0])|uint16(frame[1])<<8)
	drawCursor(frame, image.Pt(device.PANEL_WIDTH-1, device.PANEL_HEIGHT-1))
	last := len(frame) - 2
	assert.Equal(t, uint16(0xffff), uint16(frame[last])|uint16(frame[last+1])<<8)
}
