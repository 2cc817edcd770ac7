package compose

import (
	"fmt"
	"strings"
)

// drawText returns one drawtext filter per caption line. Lines are each
// centred horizontally and the block is centred vertically.
func (c *Compositor) drawText(captionFiles []string) []string {
	n := len(captionFiles)
	if n == 0 {
		return nil
	}

	size := c.cfg.FontSize
	if size <= 0 {
		size = 60
	}
	lineH := size * 6 / 5
	blockH := n * lineH

	font := "font=" + escapeFilterValue(c.cfg.Font)
	if c.cfg.FontFile != "" {
		font = "fontfile=" + escapeFilterValue(c.cfg.FontFile)
	}

	filters := make([]string, 0, n)
	for i, f := range captionFiles {
		filters = append(filters, fmt.Sprintf(
			"drawtext=textfile=%s:expansion=none:%s:fontsize=%d:fontcolor=%s:borderw=%d:bordercolor=%s:x=(w-text_w)/2:y=(h-%d)/2+%d",
			escapeFilterValue(f),
			font,
			size,
			c.cfg.FontColor,
			c.cfg.StrokeWidth,
			c.cfg.StrokeColor,
			blockH,
			i*lineH,
		))
	}
	return filters
}

// escapeFilterValue escapes characters that end an option value inside a
// filtergraph.
func escapeFilterValue(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`,`, `\,`,
		`;`, `\;`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return r.Replace(s)
}
