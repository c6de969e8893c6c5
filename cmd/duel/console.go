package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/DoyleJ11/wordduel/internal/engine"
	"github.com/DoyleJ11/wordduel/internal/matchmaking"
	"github.com/DoyleJ11/wordduel/internal/session"
	"github.com/DoyleJ11/wordduel/internal/timer"
	"github.com/DoyleJ11/wordduel/internal/types"
)

type cmdKind int

const (
	cmdDrag cmdKind = iota
	cmdAbandon
	cmdStatus
	cmdSearch
	cmdCancel
	cmdQuit
	cmdHelp
)

type command struct {
	kind     cmdKind
	from, to types.GridIndex
}

var errUnknownCommand = errors.New("unknown command")

const helpText = `commands:
  drag r1 c1 r2 c2   select from one cell to another (0-based)
  abandon            give up the current game
  status             print the session state
  search | cancel    join or leave the matchmaking queue
  quit`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdHelp}, nil
	}
	switch fields[0] {
	case "drag", "d":
		if len(fields) != 5 {
			return command{}, fmt.Errorf("drag needs four numbers, got %d", len(fields)-1)
		}
		var n [4]int
		for i, f := range fields[1:] {
			v, err := strconv.Atoi(f)
			if err != nil || v < 0 {
				return command{}, fmt.Errorf("drag: %q is not a cell index", f)
			}
			n[i] = v
		}
		return command{
			kind: cmdDrag,
			from: types.GridIndex{Row: n[0], Col: n[1]},
			to:   types.GridIndex{Row: n[2], Col: n[3]},
		}, nil
	case "abandon":
		return command{kind: cmdAbandon}, nil
	case "status", "s":
		return command{kind: cmdStatus}, nil
	case "search":
		return command{kind: cmdSearch}, nil
	case "cancel":
		return command{kind: cmdCancel}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	}
	return command{}, fmt.Errorf("%w: %s", errUnknownCommand, fields[0])
}

// console serialises everything the CLI prints. Snapshot rendering only
// reports what changed since the previous one.
type console struct {
	mu  sync.Mutex
	out io.Writer

	status  engine.Status
	found   int
	clock   string
	queue   matchmaking.Status
	printed bool
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) queueView(v matchmaking.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Status == c.queue && c.printed {
		return
	}
	c.queue, c.printed = v.Status, true
	switch v.Status {
	case matchmaking.StatusSearching:
		fmt.Fprintln(c.out, "searching for an opponent...")
	case matchmaking.StatusFound:
		if v.Match != nil {
			fmt.Fprintf(c.out, "match found: game %s vs %s\n", v.Match.GameID, v.Match.OpponentID)
		}
	case matchmaking.StatusError:
		fmt.Fprintf(c.out, "matchmaking error: %s\n", v.Error)
	case matchmaking.StatusIdle:
		fmt.Fprintln(c.out, "not searching")
	}
}

func (c *console) snapshot(s session.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := s.State
	if st.Status != c.status {
		c.status = st.Status
		fmt.Fprintf(c.out, "[%s]", st.Status)
		if st.Err != "" {
			fmt.Fprintf(c.out, " %s", st.Err)
		}
		fmt.Fprintln(c.out)
		if st.Status == engine.StatusPreparing || st.Status == engine.StatusInProgress {
			writeGrid(c.out, st.Letters())
		}
	}

	sols := st.Solutions()
	for _, sol := range sols[min(c.found, len(sols)):] {
		who := "opponent"
		if sol.FoundBy == st.Me.ID {
			who = "you"
		}
		fmt.Fprintf(c.out, "%s found %s\n", who, strings.ToUpper(sol.Word))
	}
	c.found = len(sols)

	if res, ok := st.Result(); ok && st.Status == engine.StatusFinished {
		fmt.Fprintf(c.out, "result: %s (%s)\n", res, scoreLine(st))
	}
}

func (c *console) tick(r timer.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Clock == c.clock {
		return
	}
	c.clock = r.Clock
	if r.TimeUp {
		fmt.Fprintln(c.out, "time is up")
		return
	}
	fmt.Fprintf(c.out, "time left %s\n", r.Clock)
}

func (c *console) describe(v session.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := v.State
	fmt.Fprintf(c.out, "session %s (%s) status=%s connected=%t\n", st.SessionID, st.GameKind, st.Status, st.Connected)
	if st.Opponent != nil {
		fmt.Fprintf(c.out, "opponent %s\n", st.Opponent.Username)
	}
	fmt.Fprintf(c.out, "score %s\n", scoreLine(st))
	writeGrid(c.out, st.Letters())
}

func scoreLine(st engine.State) string {
	me := st.Game.ScoreOf(st.Me.ID)
	them := 0
	if st.Opponent != nil {
		them = st.Game.ScoreOf(st.Opponent.ID)
	}
	return fmt.Sprintf("you %d, them %d", me, them)
}

func writeGrid(w io.Writer, letters [][]string) {
	for _, row := range letters {
		fmt.Fprintln(w, "  "+strings.Join(row, " "))
	}
}
