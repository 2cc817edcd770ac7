package compose

import (
	"math"
	"strings"
)

// Portrait target ratio, width:height
const (
	aspectW = 9
	aspectH = 16
)

// LoopCount is how many times a clip must play back to back to cover
// target seconds. One play suffices when the clip is already long enough;
// otherwise floor(target/clip)+1, which always overshoots before the trim.
func LoopCount(clip, target float64) int {
	if clip <= 0 {
		return 0
	}
	if clip >= target {
		return 1
	}
	return int(math.Floor(target/clip)) + 1
}

// Frame is the region of the source kept after reframing
type Frame struct {
	W, H    int
	X, Y    int
	Cropped bool
}

// Reframe centre-crops frames wider than 9:16 to 9:16 at full height.
// Frames at or narrower than 9:16 are returned untouched, including
// over-tall ones.
func Reframe(w, h int) Frame {
	if w <= 0 || h <= 0 || w*aspectH <= h*aspectW {
		return Frame{W: w, H: h}
	}
	nw := h * aspectW / aspectH
	nw -= nw % 2 // yuv420p needs even dimensions
	if nw < 2 {
		nw = 2
	}
	return Frame{W: nw, H: h, X: (w - nw) / 2, Cropped: true}
}

// captionChars estimates how many characters of a bold sans font at
// fontSize fit in widthRatio of frameW.
func captionChars(frameW, fontSize int, widthRatio float64) int {
	if fontSize <= 0 {
		fontSize = 60
	}
	n := int(float64(frameW) * widthRatio / (0.55 * float64(fontSize)))
	if n < 8 {
		n = 8
	}
	return n
}

// WrapCaption greedily breaks text into lines of at most maxChars runes.
// Words longer than maxChars get a line of their own.
func WrapCaption(text string, maxChars int) []string {
	var lines []string
	var cur strings.Builder
	curLen := 0
	for _, word := range strings.Fields(text) {
		wl := len([]rune(word))
		if curLen > 0 && curLen+1+wl > maxChars {
			lines = append(lines, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wl
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
