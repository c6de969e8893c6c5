package grid

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/DoyleJ11/wordduel/internal/types"
)

const (
	CellSize      = 50.0
	GapSize       = 4.0
	LineThickness = 30.0

	// Words shorter than this are never submitted.
	MinWordLength = 2
)

// Metrics describes the pixel layout of the drawing surface.
type Metrics struct {
	CellSize float64
	GapSize  float64
}

func DefaultMetrics() Metrics {
	return Metrics{CellSize: CellSize, GapSize: GapSize}
}

func (m Metrics) pitch() float64 { return m.CellSize + m.GapSize }

// SurfaceSize is the side length of an n×n surface: n cells and n-1 gaps.
func (m Metrics) SurfaceSize(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n)*m.CellSize + float64(n-1)*m.GapSize
}

// Contains reports whether p lies on the surface, edges included.
func (m Metrics) Contains(p types.Point, n int) bool {
	size := m.SurfaceSize(n)
	return p.X >= 0 && p.X <= size && p.Y >= 0 && p.Y <= size
}

// Clamp pulls p back onto the surface.
func (m Metrics) Clamp(p types.Point, n int) types.Point {
	size := m.SurfaceSize(n)
	return types.Point{X: clampFloat(p.X, 0, size), Y: clampFloat(p.Y, 0, size)}
}

// ToGridIndex maps a pixel to the cell containing it. Coordinates off the
// surface saturate to the nearest edge cell.
func (m Metrics) ToGridIndex(p types.Point, n int) types.GridIndex {
	return types.GridIndex{Row: m.axis(p.Y, n), Col: m.axis(p.X, n)}
}

func (m Metrics) axis(px float64, n int) int {
	if n <= 0 || math.IsNaN(px) || px <= 0 {
		return 0
	}
	idx := math.Floor(px / m.pitch())
	if idx >= float64(n-1) {
		return n - 1
	}
	return int(idx)
}

func (m Metrics) ToGridLine(pos types.Position, n int) types.GridLine {
	return types.GridLine{
		StartIndex: m.ToGridIndex(pos.StartPoint, n),
		EndIndex:   m.ToGridIndex(pos.EndPoint, n),
	}
}

// CellCenter is the pixel at the middle of a cell's pitch box.
func (m Metrics) CellCenter(idx types.GridIndex) types.Point {
	half := m.pitch() / 2
	return types.Point{
		X: float64(idx.Col)*m.pitch() + half,
		Y: float64(idx.Row)*m.pitch() + half,
	}
}

// Collinear reports whether the line runs horizontally, vertically or on an
// exact 45° diagonal.
func Collinear(line types.GridLine) bool {
	dr := abs(line.EndIndex.Row - line.StartIndex.Row)
	dc := abs(line.EndIndex.Col - line.StartIndex.Col)
	return dr == 0 || dc == 0 || dr == dc
}

// ResolveWord reads the letters under line, start to end inclusive. A
// single-cell line yields that one letter. ok is false for non-straight
// lines and for lines leaving the grid. Letter case is preserved.
func ResolveWord(letters [][]string, line types.GridLine) (word string, ok bool) {
	if !Collinear(line) {
		return "", false
	}

	dr := line.EndIndex.Row - line.StartIndex.Row
	dc := line.EndIndex.Col - line.StartIndex.Col
	steps := max(abs(dr), abs(dc))
	ur, uc := sign(dr), sign(dc)

	var b strings.Builder
	for i := 0; i <= steps; i++ {
		r := line.StartIndex.Row + i*ur
		c := line.StartIndex.Col + i*uc
		letter, ok := at(letters, r, c)
		if !ok {
			return "", false
		}
		b.WriteString(letter)
	}
	return b.String(), true
}

// Submittable reports whether word is long enough to send to the server.
func Submittable(word string) bool {
	return utf8.RuneCountInString(word) >= MinWordLength
}

func at(letters [][]string, r, c int) (string, bool) {
	if r < 0 || r >= len(letters) {
		return "", false
	}
	row := letters[r]
	if c < 0 || c >= len(row) {
		return "", false
	}
	return row[c], true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
