// Package card renders the profile card shown by /profil.
package card

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"resellboost/internal/config"
)

// Card geometry.
const (
	Width      = 900
	Height     = 300
	inset      = 20
	radius     = 20
	avatarSize = 128
	avatarX    = 60
	avatarY    = 86
	barX       = 220
	barY       = 180
	barW       = 620
	barH       = 30
)

// CardData is what the card displays about one member.
type CardData struct {
	DisplayName string
	Level       int
	XP          float64
	Credits     float64
	Avatar      image.Image
}

// DefaultPalette fills colours a configured palette leaves empty.
var DefaultPalette = config.Palette{
	Background: "#23272A",
	Surface:    "#2C2F33",
	Text:       "#FFFFFF",
	Accent:     "#5865F2",
}

// Render draws the card and returns it PNG encoded.
func Render(d CardData, xs config.XPSystem, palette config.Palette) ([]byte, error) {
	return RenderWith(d, xs, palette, nil)
}

// RenderWith is Render with a logger for font loading problems.
func RenderWith(d CardData, xs config.XPSystem, palette config.Palette, logger *zap.Logger) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := currentFaces(logger)

	bg := colorOr(palette.Background, DefaultPalette.Background)
	surface := colorOr(palette.Surface, DefaultPalette.Surface)
	text := colorOr(palette.Text, DefaultPalette.Text)
	accent := colorOr(palette.Accent, DefaultPalette.Accent)

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	panel := image.Rect(inset, inset, Width-inset, Height-inset)
	draw.DrawMask(img, panel, image.NewUniform(surface), image.Point{}, &roundedMask{size: panel.Size(), r: radius}, image.Point{}, draw.Over)

	if d.Avatar != nil {
		avatar := resize.Resize(avatarSize, avatarSize, d.Avatar, resize.Lanczos3)
		dst := image.Rect(avatarX, avatarY, avatarX+avatarSize, avatarY+avatarSize)
		draw.DrawMask(img, dst, avatar, avatar.Bounds().Min, &circleMask{d: avatarSize}, image.Point{}, draw.Over)
	}

	level := d.Level
	if level < 1 {
		level = 1
	}
	drawText(img, barX, 50+ascent(f.name), d.DisplayName, f.name, text)

	lvl := fmt.Sprintf("LVL %d", level)
	lvlW := font.MeasureString(f.level, lvl).Ceil()
	drawText(img, Width-60-lvlW, 50+ascent(f.level), lvl, f.level, accent)

	inLevel, needed := xs.Progress(d.XP, level)
	p := Progress(inLevel, needed)

	track := image.Rect(barX, barY, barX+barW, barY+barH)
	draw.DrawMask(img, track, image.NewUniform(bg), image.Point{}, &roundedMask{size: track.Size(), r: barH / 2}, image.Point{}, draw.Over)
	if fill := int(float64(barW) * p); fill > 0 {
		filled := image.Rect(barX, barY, barX+fill, barY+barH)
		draw.DrawMask(img, filled, image.NewUniform(accent), image.Point{}, &roundedMask{size: filled.Size(), r: barH / 2}, image.Point{}, draw.Over)
	}

	drawText(img, barX, barY-10, fmt.Sprintf("%d / %d XP", max(inLevel, 0), needed), f.body, text)
	drawText(img, barX, barY+barH+10+ascent(f.small), fmt.Sprintf("Crédits: %.2f", d.Credits), f.small, text)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// Progress is the filled fraction of the level bar, clamped to [0, 1].
func Progress(inLevel, needed int) float64 {
	if needed <= 0 {
		return 1
	}
	p := float64(inLevel) / float64(needed)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// DecodeAvatar reads an avatar in any registered image format.
func DecodeAvatar(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode avatar: %w", err)
	}
	return img, nil
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func colorOr(hex, fallback string) color.RGBA {
	if c, err := ParseHexColor(hex); err == nil {
		return c
	}
	c, _ := ParseHexColor(fallback)
	return c
}

func ascent(face font.Face) int {
	return face.Metrics().Ascent.Ceil()
}

func drawText(img draw.Image, x, y int, s string, face font.Face, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(s)
}

// roundedMask is an alpha mask of a rectangle with rounded corners, anchored
// at the origin.
type roundedMask struct {
	size image.Point
	r    int
}

func (m *roundedMask) ColorModel() color.Model { return color.AlphaModel }

func (m *roundedMask) Bounds() image.Rectangle { return image.Rectangle{Max: m.size} }

func (m *roundedMask) At(x, y int) color.Color {
	r := min(m.r, m.size.X/2, m.size.Y/2)
	cx, cy := x, y
	switch {
	case x < r:
		cx = r
	case x >= m.size.X-r:
		cx = m.size.X - r - 1
	}
	switch {
	case y < r:
		cy = r
	case y >= m.size.Y-r:
		cy = m.size.Y - r - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > r*r {
		return color.Alpha{}
	}
	return color.Alpha{A: 255}
}

type circleMask struct {
	d int
}

func (m *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (m *circleMask) Bounds() image.Rectangle { return image.Rect(0, 0, m.d, m.d) }

func (m *circleMask) At(x, y int) color.Color {
	r := float64(m.d) / 2
	dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
	if dx*dx+dy*dy > r*r {
		return color.Alpha{}
	}
	return color.Alpha{A: 255}
}
