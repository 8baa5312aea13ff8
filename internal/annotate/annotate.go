// Package annotate burns location and time captions onto captured frames and
// encodes the result as JPEG.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
)

// TimeLayout is the caption timestamp format (day first).
const TimeLayout = "02/01/2006, 15:04:05"

// Caption band geometry, relative to the frame's bottom-left.
const (
	bandInset   = 10
	bandTop     = 60
	bandHeight  = 50
	textX       = 20
	coordLineY  = 35
	timeLineY   = 15
	defaultSize = 20
	defaultQ    = 92
)

var bandColor = color.NRGBA{R: 0, G: 0, B: 0, A: 128}

// Options configure caption rendering.
type Options struct {
	Location    *time.Location // zone for the caption timestamp; UTC when nil
	ZoneLabel   string         // printed in "Time (<label>)"; zone abbreviation when empty
	FontSize    float64
	JPEGQuality int
}

// Result is one annotated photo.
type Result struct {
	Image      []byte // JPEG
	Lat        *float64
	Lon        *float64
	CapturedAt time.Time
	TimeLabel  string
	Caption    [2]string
}

// Annotator renders captions. It is safe for concurrent use.
type Annotator struct {
	opts Options

	mu   sync.Mutex // font.Face is not safe for concurrent use
	face font.Face
}

// New parses the built-in Go Regular face at the configured size.
func New(opts Options) (*Annotator, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.FontSize <= 0 {
		opts.FontSize = defaultSize
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultQ
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("creating font face: %w", err)
	}
	return &Annotator{opts: opts, face: face}, nil
}

// Annotate draws the caption band onto a copy of frame. fix may be nil when
// no position could be resolved. Identical inputs give identical bytes.
func (a *Annotator) Annotate(frame image.Image, fix *geo.Fix, capturedAt time.Time) (Result, error) {
	if frame == nil {
		return Result{}, fmt.Errorf("annotate: nil frame")
	}
	b := frame.Bounds()
	if b.Empty() {
		return Result{}, fmt.Errorf("annotate: empty frame")
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)

	res := Result{CapturedAt: capturedAt}
	if fix != nil {
		lat, lon := fix.Lat, fix.Lon
		res.Lat, res.Lon = &lat, &lon
	}
	res.TimeLabel = a.FormatTime(capturedAt)
	res.Caption = [2]string{CoordLine(fix), fmt.Sprintf("Time (%s): %s", a.zoneLabel(capturedAt), res.TimeLabel)}

	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	band := image.Rect(bandInset, h-bandTop, bandInset+(w-2*bandInset), h-bandTop+bandHeight).Intersect(dst.Bounds())
	if !band.Empty() {
		draw.Draw(dst, band, image.NewUniform(bandColor), image.Point{}, draw.Over)
	}

	a.mu.Lock()
	d := font.Drawer{Dst: dst, Src: image.White, Face: a.face}
	d.Dot = fixed.P(textX, h-coordLineY)
	d.DrawString(res.Caption[0])
	d.Dot = fixed.P(textX, h-timeLineY)
	d.DrawString(res.Caption[1])
	a.mu.Unlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: a.opts.JPEGQuality}); err != nil {
		return Result{}, fmt.Errorf("encoding jpeg: %w", err)
	}
	res.Image = buf.Bytes()
	return res, nil
}

// FormatTime renders t in the caption zone using TimeLayout.
func (a *Annotator) FormatTime(t time.Time) string {
	return t.In(a.opts.Location).Format(TimeLayout)
}

func (a *Annotator) zoneLabel(t time.Time) string {
	if a.opts.ZoneLabel != "" {
		return a.opts.ZoneLabel
	}
	name, _ := t.In(a.opts.Location).Zone()
	return name
}

// CoordLine is the first caption line for fix.
func CoordLine(fix *geo.Fix) string {
	if fix == nil {
		return "Lat: Unknown, Lon: Unknown"
	}
	return fmt.Sprintf("Lat: %.6f, Lon: %.6f", fix.Lat, fix.Lon)
}
