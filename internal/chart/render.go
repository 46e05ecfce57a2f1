package chart

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/pollen_dashboard/internal/series"
)

// Track colors, in track order (orange pollen; green temperature, blue humidity).
var palette = map[string][]color.RGBA{
	Pollen: {{255, 165, 0, 255}},
	Sensor: {{51, 255, 129, 255}, {107, 85, 255, 255}},
}

var (
	background = color.RGBA{24, 24, 32, 255}
	gridColor  = color.RGBA{255, 255, 255, 26}
	textColor  = color.RGBA{255, 255, 255, 204}
)

const (
	minWidth  = 120
	minHeight = 80
	margin    = 24
)

// RenderPNG draws the current buffer as a line chart. Each track is scaled
// to its own min/max; missing samples leave a gap in the line.
func (c *Chart) RenderPNG(w io.Writer, width, height int) error {
	if width < minWidth || height < minHeight {
		return errors.Errorf("chart size %dx%d below minimum %dx%d", width, height, minWidth, minHeight)
	}
	img := c.render(c.Series.Snapshot(), width, height)
	return errors.Wrap(png.Encode(w, img), "encode chart png")
}

func (c *Chart) render(snap series.Snapshot, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)

	plot := image.Rect(margin, margin, width-margin, height-margin)
	for i := 0; i <= 4; i++ {
		y := plot.Min.Y + i*plot.Dy()/4
		hline(img, plot.Min.X, plot.Max.X, y, gridColor)
	}

	drawText(img, margin, margin-8, c.Title)

	colors := palette[c.Key]
	for t, track := range snap.Tracks {
		col := textColor
		if t < len(colors) {
			col = colors[t]
		}
		lo, hi, ok := bounds(track)
		if !ok {
			continue
		}
		plotTrack(img, plot, track, lo, hi, col)
		if t == 0 {
			drawText(img, 2, plot.Min.Y+10, short(hi))
			drawText(img, 2, plot.Max.Y, short(lo))
		}
	}

	if n := len(snap.Labels); n > 0 {
		drawText(img, plot.Min.X, height-6, snap.Labels[0])
		last := snap.Labels[n-1]
		drawText(img, plot.Max.X-7*len(last), height-6, last)
	}
	return img
}

func bounds(track []series.Value) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range track {
		f, valid := v.Float()
		if !valid {
			continue
		}
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
		ok = true
	}
	if ok && hi == lo {
		lo, hi = lo-1, hi+1
	}
	return lo, hi, ok
}

func plotTrack(img *image.RGBA, plot image.Rectangle, track []series.Value, lo, hi float64, col color.RGBA) {
	n := len(track)
	point := func(i int, v float64) image.Point {
		x := plot.Min.X
		if n > 1 {
			x += i * (plot.Dx() - 1) / (n - 1)
		}
		y := plot.Max.Y - 1 - int(math.Round((v-lo)/(hi-lo)*float64(plot.Dy()-1)))
		return image.Pt(x, y)
	}

	var prev *image.Point
	for i, v := range track {
		f, ok := v.Float()
		if !ok {
			prev = nil
			continue
		}
		p := point(i, f)
		if prev != nil {
			line(img, *prev, p, col)
		} else {
			img.SetRGBA(p.X, p.Y, col)
		}
		prev = &p
	}
}

// line draws a Bresenham segment.
func line(img *image.RGBA, a, b image.Point, col color.RGBA) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := sign(b.X-a.X), sign(b.Y-a.Y)
	e := dx + dy
	for {
		img.SetRGBA(a.X, a.Y, col)
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

func hline(img *image.RGBA, x0, x1, y int, col color.RGBA) {
	for x := x0; x < x1; x++ {
		img.Set(x, y, blend(img.RGBAAt(x, y), col))
	}
}

func blend(dst, src color.RGBA) color.RGBA {
	a := uint32(src.A)
	mix := func(d, s uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255)
	}
	return color.RGBA{mix(dst.R, src.R), mix(dst.G, src.G), mix(dst.B, src.B), 255}
}

func drawText(img *image.RGBA, x, y int, s string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func short(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
