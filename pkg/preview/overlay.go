// Package preview draws the session state over camera frames and shows
// them in a local window.
package preview

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-mouthfx/pkg/control"
	"github.com/teslashibe/go-mouthfx/pkg/tracking/detection"
)

var (
	green = color.RGBA{G: 255, A: 255}
	red   = color.RGBA{R: 255, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	grey  = color.RGBA{R: 100, G: 100, B: 100, A: 255}
)

// Value bar geometry, anchored to the right edge.
const (
	barRight  = 50
	barTop    = 50
	barWidth  = 30
	barHeight = 200
)

// Line is one piece of overlay text.
type Line struct {
	Text      string
	Pos       image.Point
	Scale     float64
	Color     color.RGBA
	Thickness int
}

// Lines lays out the overlay text for a frame of the given size.
func Lines(st control.Status, width, height int) []Line {
	lines := []Line{
		{Text: fmt.Sprintf("FPS: %.1f", st.TrackerFPS), Pos: image.Pt(10, 30), Scale: 1, Color: green, Thickness: 2},
		{Text: fmt.Sprintf("Mouth: %d", st.Value), Pos: image.Pt(10, 70), Scale: 1, Color: green, Thickness: 2},
	}

	if st.Calibration.Prompt != "" {
		lines = append(lines, Line{Text: st.Calibration.Prompt, Pos: image.Pt(50, 120), Scale: 1, Color: red, Thickness: 2})
	}

	if st.FaceDetected {
		lines = append(lines, Line{
			Text:      fmt.Sprintf("Gap: %.1f", st.Gap),
			Pos:       image.Pt(width-150, barTop+barHeight+30),
			Scale:     0.7,
			Color:     white,
			Thickness: 2,
		})
	}

	if st.OSC != nil {
		lines = append(lines,
			Line{Text: "OSC: " + st.OSC.Target, Pos: image.Pt(10, height-130), Scale: 0.6, Color: white, Thickness: 1},
			Line{Text: fmt.Sprintf("Msg Rate: %.1f/s", st.OSC.MessagesPerSecond), Pos: image.Pt(10, height-100), Scale: 0.6, Color: white, Thickness: 1},
		)
	}

	if st.Audio != nil {
		status := "pause"
		if st.Playing {
			status = "playing"
		}
		lines = append(lines, Line{Text: "Status: " + status, Pos: image.Pt(10, height-70), Scale: 0.6, Color: white, Thickness: 1})
	}

	if st.HasValue {
		lines = append(lines, Line{
			Text:      fmt.Sprintf("%s: %.2f", st.Effect, float64(st.Value)/127),
			Pos:       image.Pt(10, height-40),
			Scale:     0.6,
			Color:     white,
			Thickness: 1,
		})
	}
	return lines
}

// Bar returns the value bar outline and its filled part for value in
// [0,127].
func Bar(value, width int) (outline, fill image.Rectangle) {
	x := width - barRight
	outline = image.Rect(x, barTop, x+barWidth, barTop+barHeight)
	h := value * barHeight / 127
	fill = image.Rect(x, barTop+barHeight-h, x+barWidth, barTop+barHeight)
	return outline, fill
}

// Draw renders the overlay onto img. face may be nil.
func Draw(img *gocv.Mat, st control.Status, face *detection.Face) {
	width, height := img.Cols(), img.Rows()

	if face != nil {
		gocv.Rectangle(img, image.Rect(int(face.X), int(face.Y), int(face.X+face.W), int(face.Y+face.H)), green, 1)
		for _, i := range []int{detection.NoseTip, detection.RightMouth, detection.LeftMouth} {
			p := face.Landmarks[i]
			gocv.Circle(img, image.Pt(int(p.X), int(p.Y)), 5, red, -1)
		}

		outline, fill := Bar(st.Value, width)
		gocv.Rectangle(img, outline, grey, -1)
		gocv.Rectangle(img, fill, green, -1)
	}

	for _, l := range Lines(st, width, height) {
		gocv.PutText(img, l.Text, l.Pos, gocv.FontHersheySimplex, l.Scale, l.Color, l.Thickness)
	}
}

// EncodeJPEG returns img as JPEG bytes.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("preview: encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
