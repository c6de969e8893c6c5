package draw

import (
	"math/rand"
	"strings"
	"time"

	"github.com/DoyleJ11/wordduel/internal/grid"
	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultThrottle = 50 * time.Millisecond

// DefaultPeerColor is used when the peer's update does not name a colour.
const DefaultPeerColor = "rgba(239, 68, 68, 0.5)"

// Palette holds the per-drag colours for the local live preview.
var Palette = []string{
	"rgba(255, 0, 0, 0.5)",
	"rgba(255, 165, 0, 0.5)",
	"rgba(255, 255, 0, 0.5)",
	"rgba(0, 128, 0, 0.5)",
	"rgba(0, 0, 255, 0.5)",
	"rgba(75, 0, 130, 0.5)",
	"rgba(238, 130, 238, 0.5)",
}

// SolutionColors: index 0 for the local player's finds, 1 for everyone else.
var SolutionColors = []string{
	"rgba(34, 197, 94, 0.5)",
	"rgba(59, 130, 246, 0.5)",
}

// Sender delivers a command if a connection is open. A false return means
// the command was dropped, which callers treat as normal.
type Sender interface {
	Send(msg types.Outbound) bool
}

type SenderFunc func(msg types.Outbound) bool

func (f SenderFunc) Send(msg types.Outbound) bool { return f(msg) }

// Board is the read-only view of session state the controller needs.
type Board interface {
	Letters() [][]string
	Solutions() []types.WordSolution
	IsFound(word string) bool
	LocalPlayerID() string
}

type Options struct {
	Metrics       grid.Metrics
	LineThickness float64
	Throttle      time.Duration
	Clock         clockwork.Clock
	Logger        *zap.Logger
	// PickColor chooses the next drag colour; defaults to a random Palette entry.
	PickColor func() string
}

// Preview is one live line: the raw drag, the cells under it, and the word
// those cells spell (empty when the line is not straight).
type Preview struct {
	Position types.Position
	Line     types.GridLine
	Word     string
	Color    string
}

// View is a copy of the controller's state, safe to hand to other goroutines.
type View struct {
	Dragging bool
	Color    string
	Local    *Preview
	Peer     *Preview
}

// Controller turns pointer events into selection broadcasts and word
// submissions. It is not safe for concurrent use; the session loop owns it.
type Controller struct {
	opts     Options
	sender   Sender
	log      *zap.Logger
	dragging bool
	color    string
	local    *Preview
	peer     *Preview
	lastSend time.Time
}

func New(sender Sender, opts Options) *Controller {
	if opts.Metrics == (grid.Metrics{}) {
		opts.Metrics = grid.DefaultMetrics()
	}
	if opts.LineThickness <= 0 {
		opts.LineThickness = grid.LineThickness
	}
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PickColor == nil {
		opts.PickColor = randomColor
	}
	return &Controller{
		opts:   opts,
		sender: sender,
		log:    opts.Logger,
		color:  opts.PickColor(),
	}
}

func randomColor() string {
	return Palette[rand.Intn(len(Palette))]
}

func (c *Controller) Dragging() bool { return c.dragging }

// PointerDown starts a drag if p is on the surface and a grid is loaded. The
// opening update is sent immediately.
func (c *Controller) PointerDown(b Board, p types.Point) bool {
	letters := b.Letters()
	n := len(letters)
	if n == 0 || !c.opts.Metrics.Contains(p, n) {
		return false
	}

	c.dragging = true
	c.local = c.preview(letters, types.Position{StartPoint: p, EndPoint: p}, c.color)
	c.sender.Send(types.SelectionUpdate{Position: &c.local.Position, Color: c.color})
	return true
}

// PointerMove extends the drag. Broadcasts are throttled; each one carries
// the whole selection so skipped moves lose nothing.
func (c *Controller) PointerMove(b Board, p types.Point) bool {
	letters := b.Letters()
	n := len(letters)
	if !c.dragging || c.local == nil || n == 0 {
		return false
	}

	pos := types.Position{
		StartPoint: c.local.Position.StartPoint,
		EndPoint:   c.opts.Metrics.Clamp(p, n),
	}
	c.local = c.preview(letters, pos, c.color)

	now := c.opts.Clock.Now()
	if now.Sub(c.lastSend) >= c.opts.Throttle {
		c.lastSend = now
		c.sender.Send(types.SelectionUpdate{Position: &c.local.Position, Color: c.color})
	}
	return true
}

// PointerUp ends the drag. A straight word of two or more letters that is not
// already confirmed is submitted, then the selection is always reset locally
// and on the peer, in that order. Nothing here touches score or solutions.
func (c *Controller) PointerUp(b Board) (submitted bool) {
	if !c.dragging {
		return false
	}

	if c.local != nil && grid.Submittable(c.local.Word) {
		if b.IsFound(c.local.Word) {
			c.log.Debug("word already found", zap.String("word", strings.ToUpper(c.local.Word)))
		} else {
			c.sender.Send(types.SubmitSelection{Solution: types.WordSolution{
				Word:       c.local.Word,
				StartIndex: c.local.Line.StartIndex,
				EndIndex:   c.local.Line.EndIndex,
			}})
			submitted = true
		}
	}

	c.dragging = false
	c.local = nil
	c.color = c.opts.PickColor()
	c.sender.Send(types.SelectionReset{})
	return submitted
}

// PointerLeave behaves as PointerUp while dragging.
func (c *Controller) PointerLeave(b Board) bool {
	if !c.dragging {
		return false
	}
	return c.PointerUp(b)
}

// PeerSelection stores the opponent's live line for display only.
func (c *Controller) PeerSelection(b Board, m types.SelectionUpdate) {
	if m.Position == nil {
		return
	}
	color := m.Color
	if color == "" {
		color = DefaultPeerColor
	}
	letters := b.Letters()
	if len(letters) == 0 {
		c.peer = &Preview{Position: *m.Position, Color: color}
		return
	}
	c.peer = c.preview(letters, *m.Position, color)
}

func (c *Controller) PeerReset() {
	c.peer = nil
}

func (c *Controller) View() View {
	v := View{Dragging: c.dragging, Color: c.color}
	if c.local != nil {
		local := *c.local
		v.Local = &local
	}
	if c.peer != nil {
		peer := *c.peer
		v.Peer = &peer
	}
	return v
}

func (c *Controller) preview(letters [][]string, pos types.Position, color string) *Preview {
	line := c.opts.Metrics.ToGridLine(pos, len(letters))
	word, ok := grid.ResolveWord(letters, line)
	if !ok {
		word = ""
	}
	return &Preview{Position: pos, Line: line, Word: word, Color: color}
}

// Layers composes the surface for the controller's current view.
func (c *Controller) Layers(b Board) []Stroke {
	return Compose(b, c.View(), c.opts.Metrics, c.opts.LineThickness)
}
