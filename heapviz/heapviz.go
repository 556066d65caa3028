// Package heapviz draws a gc.Snapshot as a PNG graph.
//
// Layout
//   - Roots are listed down a narrow left column, each with an arrow to
//     the node it holds.
//   - Nodes are laid out on a grid ordered by id. Every box shows the
//     node label, its id and its reference count.
//   - Edges are arrows from the bottom of the referrer to the nearest
//     anchor on the referent's box.
//
// Colours
//   - rooted nodes are drawn solid black,
//   - moribund nodes (count dropped to zero, awaiting gclite) are red and
//     dashed,
//   - everything else is grey.
//
// The mono face is the Go Mono font embedded in x/image, so rendering has no
// filesystem dependency.
package heapviz

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"iter"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/westernmagic/rho/gc"
)

// Options controls the canvas geometry.
type Options struct {
	BoxWidth  int // node box width in pixels
	BoxHeight int
	Gap       int // space between boxes
	MaxNodes  int // nodes beyond this are summarised, not drawn
}

// DefaultOptions returns the geometry used by the heap shell.
func DefaultOptions() Options {
	return Options{BoxWidth: 180, BoxHeight: 64, Gap: 40, MaxNodes: 400}
}

var (
	faded     = color.Gray{Y: 153}
	highlight = color.RGBA{R: 0xd0, G: 0x20, B: 0x20, A: 255}
)

const (
	rootColumn = 200
	header     = 72
	labelRunes = 18
)

// Render draws s with opts and writes it to w as a PNG.
func Render(s gc.Snapshot, w io.Writer, opts Options) error {
	c, err := Draw(s, opts)
	if err != nil {
		return err
	}
	return c.EncodePNG(w)
}

// Draw lays out s on a fresh canvas.
func Draw(s gc.Snapshot, opts Options) (*gg.Context, error) {
	if opts.BoxWidth <= 0 || opts.BoxHeight <= 0 {
		d := DefaultOptions()
		opts.BoxWidth, opts.BoxHeight = d.BoxWidth, d.BoxHeight
	}
	if opts.Gap < 0 {
		opts.Gap = 0
	}
	nodes := s.Nodes
	hidden := 0
	if opts.MaxNodes > 0 && len(nodes) > opts.MaxNodes {
		hidden = len(nodes) - opts.MaxNodes
		nodes = nodes[:opts.MaxNodes]
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(nodes)))))
	if cols == 0 {
		cols = 1
	}
	rows := (len(nodes) + cols - 1) / cols
	cellW, cellH := opts.BoxWidth+opts.Gap, opts.BoxHeight+opts.Gap
	width := rootColumn + cols*cellW + opts.Gap
	height := header + max(rows, 1)*cellH + opts.Gap
	if rh := header + (len(s.Roots)+1)*(opts.BoxHeight/2+8); rh > height {
		height = rh
	}

	c := gg.NewContext(width, height)
	c.SetRGB(1, 1, 1)
	c.DrawRectangle(0, 0, float64(width), float64(height))
	c.Fill()

	if err := setFontFace(c, 16); err != nil {
		return nil, err
	}
	c.SetColor(color.Black)
	st := s.Stats
	title := fmt.Sprintf("%d nodes  %d roots  collections=%d  deleted=%d", len(s.Nodes), len(s.Roots), st.Collections, st.Deleted)
	if hidden > 0 {
		title += fmt.Sprintf("  (%d not drawn)", hidden)
	}
	c.DrawStringAnchored(title, 16, 32, 0, 0.5)

	boxes := make(map[uint64]image.Rectangle, len(nodes))
	for i, n := range nodes {
		x := rootColumn + opts.Gap/2 + (i%cols)*cellW
		y := header + opts.Gap/2 + (i/cols)*cellH
		r := image.Rect(x, y, x+opts.BoxWidth, y+opts.BoxHeight)
		boxes[n.ID] = r
		if err := drawNode(c, n, r); err != nil {
			return nil, err
		}
	}

	// Edges.
	c.SetDash()
	for _, n := range nodes {
		src, ok := boxes[n.ID]
		if !ok {
			continue
		}
		setNodeColor(c, n)
		for k, id := range n.Edges {
			dst, ok := boxes[id]
			if !ok || id == n.ID {
				continue
			}
			from := image.Pt(src.Min.X+(k+1)*src.Dx()/(len(n.Edges)+1), src.Max.Y)
			to := minDistPtOnRect(from, dst, 16)
			drawArrow(c, float64(from.X), float64(from.Y), float64(to.X), float64(to.Y), 1.5)
		}
	}

	// Roots.
	if err := setFontFace(c, 14); err != nil {
		return nil, err
	}
	step := opts.BoxHeight/2 + 8
	for i, id := range s.Roots {
		y := header + (i+1)*step
		c.SetColor(color.Black)
		c.DrawStringAnchored(fmt.Sprintf("root #%d", id), 16, float64(y), 0, 0.5)
		dst, ok := boxes[id]
		if !ok {
			continue
		}
		from := image.Pt(rootColumn-24, y)
		to := minDistPtOnRect(from, dst, 16)
		drawArrow(c, float64(from.X), float64(from.Y), float64(to.X), float64(to.Y), 1.0)
	}
	return c, nil
}

func setNodeColor(c *gg.Context, n gc.NodeInfo) {
	switch {
	case n.Moribund:
		c.SetColor(highlight)
	case n.Rooted:
		c.SetColor(color.Black)
	default:
		c.SetColor(faded)
	}
}

func drawNode(c *gg.Context, n gc.NodeInfo, r image.Rectangle) error {
	setNodeColor(c, n)
	if n.Moribund {
		c.SetDash(6, 4)
	} else {
		c.SetDash()
	}
	c.SetLineWidth(2)
	if n.Rooted {
		c.SetLineWidth(3)
	}
	c.DrawRoundedRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), 8)
	c.Stroke()

	if err := setFontFace(c, 14); err != nil {
		return err
	}
	cx := float64(r.Min.X + r.Dx()/2)
	c.DrawStringAnchored(truncate(n.Kind, labelRunes), cx, float64(r.Min.Y)+float64(r.Dy())/3, 0.5, 0.5)
	if err := setFontFace(c, 11); err != nil {
		return err
	}
	c.DrawStringAnchored(fmt.Sprintf("#%d  refs=%d  %dB", n.ID, n.Refs, n.Size), cx, float64(r.Min.Y)+float64(r.Dy())*2/3, 0.5, 0.5)
	return nil
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}

func drawArrow(c *gg.Context, srcX, srcY, dstX, dstY, width float64) {
	dist := math.Hypot(dstX-srcX, dstY-srcY)
	if dist == 0 {
		return
	}
	c.SetLineWidth(width)
	c.MoveTo(srcX, srcY)
	c.LineTo(dstX, dstY)
	c.Stroke()

	const th = math.Pi / 8
	al := 5 + 3*width
	vx := (srcX - dstX) / dist * al
	vy := (srcY - dstY) / dist * al
	c.MoveTo(dstX, dstY)
	c.LineTo(dstX+vx*math.Cos(th)-vy*math.Sin(th), dstY+vx*math.Sin(th)+vy*math.Cos(th))
	c.LineTo(dstX+vx*math.Cos(-th)-vy*math.Sin(-th), dstY+vx*math.Sin(-th)+vy*math.Cos(-th))
	c.ClosePath()
	c.Fill()
}

func minDistPtOnRect(src image.Point, rect image.Rectangle, div int) image.Point {
	best := -1
	var out image.Point
	for d := range rectAnchors(rect, div) {
		dx, dy := d.X-src.X, d.Y-src.Y
		if d2 := dx*dx + dy*dy; best < 0 || d2 < best {
			best = d2
			out = d
		}
	}
	return out
}

func rectAnchors(rect image.Rectangle, div int) iter.Seq[image.Point] {
	return func(yield func(image.Point) bool) {
		for x := rect.Min.X + div/2; x <= rect.Max.X-div/2; x += div {
			if !yield(image.Pt(x, rect.Min.Y)) || !yield(image.Pt(x, rect.Max.Y)) {
				return
			}
		}
		for y := rect.Min.Y + div/2; y <= rect.Max.Y-div/2; y += div {
			if !yield(image.Pt(rect.Min.X, y)) || !yield(image.Pt(rect.Max.X, y)) {
				return
			}
		}
	}
}

var (
	fontOnce  sync.Once
	monoFont  *truetype.Font
	fontErr   error
	faceMu    sync.Mutex
	faceCache = make(map[float64]font.Face)
)

func setFontFace(c *gg.Context, size float64) error {
	fontOnce.Do(func() { monoFont, fontErr = truetype.Parse(gomono.TTF) })
	if fontErr != nil {
		return fmt.Errorf("heapviz: parse font: %w", fontErr)
	}
	faceMu.Lock()
	defer faceMu.Unlock()
	f, ok := faceCache[size]
	if !ok {
		f = truetype.NewFace(monoFont, &truetype.Options{Size: size})
		faceCache[size] = f
	}
	c.SetFontFace(f)
	return nil
}
