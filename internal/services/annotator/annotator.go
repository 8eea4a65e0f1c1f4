package annotator

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/Luisfrighetto/Visao/internal/helpers"
	"github.com/Luisfrighetto/Visao/internal/models"
)

const (
	fontScale       = 0.6
	thickness       = 2
	lineHeight      = 25
	padding         = 10
	cornerLength    = 15
	cornerThickness = 3
)

var (
	white        = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black        = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	panelColor   = color.RGBA{R: 0, G: 0, B: 0, A: 180}
	defaultColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
)

// Options are the overlay colors as #RRGGBB strings and a Hershey font id
type Options struct {
	PlayerColor string
	BallColor   string
	TextColor   string
	Font        int
}

// Annotator draws detections and the status panel. It holds no per-frame
// state and is safe for concurrent use.
type Annotator struct {
	colors    map[models.Category]color.RGBA
	textColor color.RGBA
	font      gocv.HersheyFont
}

func New(opts Options) (*Annotator, error) {
	player, err := parseHexColor(opts.PlayerColor)
	if err != nil {
		return nil, fmt.Errorf("player color: %w", err)
	}
	ball, err := parseHexColor(opts.BallColor)
	if err != nil {
		return nil, fmt.Errorf("ball color: %w", err)
	}
	text, err := parseHexColor(opts.TextColor)
	if err != nil {
		return nil, fmt.Errorf("text color: %w", err)
	}
	// Keep text readable: if chosen color is too dark, use white
	if isDarkColor(text) {
		text = white
	}

	return &Annotator{
		colors: map[models.Category]color.RGBA{
			models.CategoryPlayer: player,
			models.CategoryBall:   ball,
		},
		textColor: text,
		font:      gocv.HersheyFont(opts.Font),
	}, nil
}

// Annotate returns a new frame with one box and label per detection plus the
// status panel. The input frame is never modified.
func (a *Annotator) Annotate(frame models.Frame, detections []models.Detection, frameIndex, framesTotal int, threshold float64) (models.Frame, error) {
	// Deep copy first so Mat operations never touch the decoded buffer
	mat, err := helpers.FrameToMat(frame.Clone())
	if err != nil {
		return models.Frame{}, err
	}
	defer mat.Close()

	result := models.FrameResult{Index: frameIndex, Detections: detections}
	for _, det := range detections {
		a.drawDetection(&mat, det)
	}
	a.drawStatus(&mat, statusLines(result, frameIndex, framesTotal, threshold))

	return helpers.MatToFrame(mat, frame.Index), nil
}

func statusLines(result models.FrameResult, frameIndex, framesTotal int, threshold float64) []string {
	progress := fmt.Sprintf("Frame: %d/%d", frameIndex, framesTotal)
	if framesTotal <= 0 {
		progress = fmt.Sprintf("Frame: %d", frameIndex)
	}
	return []string{
		fmt.Sprintf("Players: %d", result.Count(models.CategoryPlayer)),
		fmt.Sprintf("Balls: %d", result.Count(models.CategoryBall)),
		progress,
		fmt.Sprintf("Conf: %.2f", threshold),
	}
}

func (a *Annotator) drawDetection(mat *gocv.Mat, det models.Detection) {
	width, height := mat.Cols(), mat.Rows()
	if width < 2 || height < 2 {
		return
	}
	x1 := max(0, min(width-2, det.Box.Min.X))
	y1 := max(0, min(height-2, det.Box.Min.Y))
	x2 := max(x1+1, min(width-1, det.Box.Max.X))
	y2 := max(y1+1, min(height-1, det.Box.Max.Y))

	detColor, ok := a.colors[det.Category]
	if !ok {
		detColor = defaultColor
	}

	gocv.Rectangle(mat, image.Rect(x1, y1, x2, y2), detColor, 2)
	gocv.Line(mat, image.Pt(x1, y1), image.Pt(x1+cornerLength, y1), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x1, y1), image.Pt(x1, y1+cornerLength), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x2, y1), image.Pt(x2-cornerLength, y1), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x2, y1), image.Pt(x2, y1+cornerLength), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x1, y2), image.Pt(x1+cornerLength, y2), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x1, y2), image.Pt(x1, y2-cornerLength), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x2, y2), image.Pt(x2-cornerLength, y2), detColor, cornerThickness)
	gocv.Line(mat, image.Pt(x2, y2), image.Pt(x2, y2-cornerLength), detColor, cornerThickness)

	label := fmt.Sprintf("%s %.2f", det.Category, det.Confidence)
	size := gocv.GetTextSize(label, a.font, 0.5, 1)
	top := y1 - size.Y - 6
	if top < 0 {
		top = y1
	}
	gocv.Rectangle(mat, image.Rect(x1, top, x1+size.X+6, top+size.Y+6), detColor, -1)
	labelColor := black
	if isDarkColor(detColor) {
		labelColor = white
	}
	gocv.PutText(mat, label, image.Pt(x1+3, top+size.Y+3), a.font, 0.5, labelColor, 1)
}

func (a *Annotator) drawStatus(mat *gocv.Mat, lines []string) {
	maxTextWidth := 0
	for _, line := range lines {
		size := gocv.GetTextSize(line, a.font, fontScale, thickness)
		if size.X > maxTextWidth {
			maxTextWidth = size.X
		}
	}
	startY := padding * 2
	gocv.Rectangle(mat, image.Rect(5, startY-padding, maxTextWidth+padding*2+5, startY+len(lines)*lineHeight+padding), panelColor, -1)
	for i, line := range lines {
		gocv.PutText(mat, line, image.Pt(padding+5, startY+(i*lineHeight)+20), a.font, fontScale, a.textColor, thickness)
	}
}

// parseHexColor converts a color string like "#RRGGBB" to color.RGBA
func parseHexColor(s string) (color.RGBA, error) {
	var c color.RGBA
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return c, fmt.Errorf("invalid color length: %s", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return c, err
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// isDarkColor determines if a color is considered dark using perceived luminance
func isDarkColor(c color.RGBA) bool {
	luminance := 0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)
	return luminance < 128
}
