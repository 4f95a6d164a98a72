package vision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when no on-screen text matches a query. It is a
// recoverable condition routed to the healing layer, never fatal to a
// plan.
var ErrNotFound = errors.New("text not found on screen")

// Box is a pixel-space bounding box.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Centroid returns the center point of the box.
func (b Box) Centroid() Point {
	return Point{X: b.Left + b.Width/2, Y: b.Top + b.Height/2}
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TextRegion is one recognized run of text and where it sits on screen.
type TextRegion struct {
	Text string `json:"text"`
	Box  Box    `json:"bounding_box"`
	Line int    `json:"line"`
	Word int    `json:"word"`
}

// Capturer produces a screen image for recognition.
type Capturer interface {
	CaptureScreen(ctx context.Context) (imagePath string, err error)
}

// Recognizer extracts text regions from a captured image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) ([]TextRegion, error)
}

// Vision composes capture and recognition into text lookup.
type Vision struct {
	Capturer   Capturer
	Recognizer Recognizer
}

// New returns a vision subsystem over the given capture and recognition
// backends.
func New(c Capturer, r Recognizer) *Vision {
	return &Vision{Capturer: c, Recognizer: r}
}

// FindText captures the screen and returns the centroid of the best
// case-insensitive substring match for query, first match in reading
// order. Returns ErrNotFound when nothing matches.
func (v *Vision) FindText(ctx context.Context, query string) (Point, error) {
	imagePath, err := v.Capturer.CaptureScreen(ctx)
	if err != nil {
		return Point{}, fmt.Errorf("screen capture failed: %w", err)
	}
	regions, err := v.Recognizer.Recognize(ctx, imagePath)
	if err != nil {
		return Point{}, fmt.Errorf("text recognition failed: %w", err)
	}
	return Locate(regions, query)
}

// Locate finds query within already-recognized regions. Words on the same
// line are joined so a query may span several regions; the match box is
// the union of the covered words.
func Locate(regions []TextRegion, query string) (Point, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Point{}, ErrNotFound
	}

	for _, line := range groupLines(regions) {
		var sb strings.Builder
		spans := make([][2]int, len(line))
		for i, region := range line {
			if i > 0 {
				sb.WriteByte(' ')
			}
			start := sb.Len()
			sb.WriteString(region.Text)
			spans[i] = [2]int{start, sb.Len()}
		}
		idx := strings.Index(strings.ToLower(sb.String()), query)
		if idx < 0 {
			continue
		}
		end := idx + len(query)

		var match *Box
		for i, region := range line {
			if spans[i][1] <= idx || spans[i][0] >= end {
				continue
			}
			if match == nil {
				b := region.Box
				match = &b
			} else {
				*match = union(*match, region.Box)
			}
		}
		if match != nil {
			return match.Centroid(), nil
		}
	}
	return Point{}, ErrNotFound
}

// groupLines orders regions into reading order: lines top to bottom, words
// left to right within a line.
func groupLines(regions []TextRegion) [][]TextRegion {
	byLine := make(map[int][]TextRegion)
	var keys []int
	for _, r := range regions {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		if _, seen := byLine[r.Line]; !seen {
			keys = append(keys, r.Line)
		}
		byLine[r.Line] = append(byLine[r.Line], r)
	}
	sort.Ints(keys)

	lines := make([][]TextRegion, 0, len(keys))
	for _, k := range keys {
		line := byLine[k]
		sort.Slice(line, func(i, j int) bool { return line[i].Word < line[j].Word })
		lines = append(lines, line)
	}
	return lines
}

func union(a, b Box) Box {
	left := min(a.Left, b.Left)
	top := min(a.Top, b.Top)
	right := max(a.Left+a.Width, b.Left+b.Width)
	bottom := max(a.Top+a.Height, b.Top+b.Height)
	return Box{Left: left, Top: top, Width: right - left, Height: bottom - top}
}
