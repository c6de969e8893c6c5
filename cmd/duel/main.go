package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/DoyleJ11/wordduel/internal/config"
	"github.com/DoyleJ11/wordduel/internal/draw"
	"github.com/DoyleJ11/wordduel/internal/engine"
	"github.com/DoyleJ11/wordduel/internal/grid"
	"github.com/DoyleJ11/wordduel/internal/httpapi"
	"github.com/DoyleJ11/wordduel/internal/hub"
	"github.com/DoyleJ11/wordduel/internal/matchmaking"
	"github.com/DoyleJ11/wordduel/internal/session"
	"github.com/DoyleJ11/wordduel/internal/timer"
	"github.com/DoyleJ11/wordduel/internal/types"
	"github.com/DoyleJ11/wordduel/internal/ws"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "duel"
	app.Usage = "play a word-search duel from the terminal"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to a YAML config file", EnvVar: "DUEL_CONFIG"},
		cli.StringFlag{Name: "token", Usage: "bearer access token (overrides config)"},
		cli.StringFlag{Name: "game", Usage: "game kind to queue for"},
		cli.StringFlag{Name: "session", Usage: "join this session id directly, skipping matchmaking"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("token"); v != "" {
		cfg.AccessToken = v
	}
	if v := c.String("game"); v != "" {
		cfg.Game = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newApp(cfg, log, os.Stdout).run(ctx, os.Stdin, c.String("session"))
}

// app wires one terminal player: matchmaking hands a game id to the hub, the
// mounted session streams snapshots to the console, and stdin drives input.
type app struct {
	cfg  config.Config
	log  *zap.Logger
	con  *console
	api  *httpapi.Client
	hub  *hub.Hub
	mm   *matchmaking.Client
	cur  atomic.Pointer[session.Session]
	last atomic.Pointer[engine.State]

	mounted chan *session.Session
}

func newApp(cfg config.Config, log *zap.Logger, out io.Writer) *app {
	return &app{
		cfg:     cfg,
		log:     log,
		con:     newConsole(out),
		api:     httpapi.New(cfg.APIURL, httpapi.Options{Timeout: cfg.Timing.HTTPTimeout, Logger: log}),
		mounted: make(chan *session.Session, 1),
	}
}

func (a *app) run(parent context.Context, in io.Reader, sessionID string) error {
	if a.cfg.AccessToken != "" {
		if err := a.api.SetToken(a.cfg.AccessToken); err != nil {
			return fmt.Errorf("access token: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	a.hub = hub.NewHub(ctx, a.log)
	defer func() {
		if err := a.hub.Shutdown(); err != nil {
			a.log.Warn("hub shutdown", zap.Error(err))
		}
	}()

	if sessionID != "" {
		a.mount(sessionID, a.cfg.Game)
	} else {
		a.mm = matchmaking.New(ctx, a.api, matchmaking.Options{
			GameName:     a.cfg.Game,
			PollInterval: a.cfg.Timing.PollInterval,
			HandoffDelay: a.cfg.Timing.HandoffDelay,
			Logger:       a.log,
			OnAuthRequired: func() {
				a.con.printf("an access token is required; pass --token or set DUEL_ACCESS_TOKEN\n")
			},
			OnMatch: func(m types.MatchResponse) { a.mount(m.GameID, m.GameName) },
		})
		defer a.mm.Close()

		updates := make(chan matchmaking.View, 16)
		a.mm.Post(matchmaking.Subscribe{ClientID: "console", Outbox: updates})
		g.Go(func() error {
			for v := range updates {
				a.con.queueView(v)
			}
			return nil
		})
		a.mm.StartSearch()
	}

	g.Go(func() error { return a.play(ctx) })
	g.Go(func() error {
		err := timer.Watch(ctx, clockwork.NewRealClock(), a.cfg.Timing.TimerRefresh, a.current, a.con.tick)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return a.commands(ctx, cancel, lines(ctx, in)) })

	return g.Wait()
}

func (a *app) mount(id, game string) {
	if game == "" {
		game = a.cfg.Game
	}
	var me types.Player
	if ident, ok := a.api.Identity(); ok {
		me = types.Player{ID: ident.PlayerID, Username: ident.Username}
	}

	s := a.hub.Mount(session.Options{
		SessionID:   id,
		GameKind:    game,
		Me:          me,
		WSBaseURL:   a.cfg.WSURL,
		Credentials: a.api,
		Dialer:      ws.Dialer{WriteTimeout: a.cfg.Timing.WriteTimeout, Logger: a.log},
		Sound:       func(kind string) { a.con.printf("\a[%s]\n", kind) },
		ReadyDelay:  a.cfg.Timing.ReadyDelay,
		Draw: draw.Options{
			Metrics:       a.metrics(),
			LineThickness: a.cfg.Board.LineThickness,
			Throttle:      a.cfg.Timing.Throttle,
		},
		Logger: a.log,
	})
	if s == nil {
		return
	}
	select {
	case a.mounted <- s:
	default:
		a.log.Warn("a session is already mounted", zap.String("session_id", id))
	}
}

// play follows the mounted session until it reaches a terminal status, then
// waits for the player to quit.
func (a *app) play(ctx context.Context) error {
	var s *session.Session
	select {
	case s = <-a.mounted:
	case <-ctx.Done():
		return nil
	}
	a.cur.Store(s)

	snaps := make(chan session.Snapshot, 32)
	if !s.Post(session.Subscribe{ClientID: "console", Outbox: snaps}) {
		return session.ErrClosed
	}
	for snap := range snaps {
		st := snap.State
		a.last.Store(&st)
		a.con.snapshot(snap)
		if st.Status.Terminal() {
			a.con.printf("game over, type quit to exit\n")
			break
		}
	}
	<-ctx.Done()
	return nil
}

func (a *app) current() engine.State {
	if st := a.last.Load(); st != nil {
		return *st
	}
	return engine.State{}
}

func (a *app) commands(ctx context.Context, quit context.CancelFunc, in <-chan string) error {
	a.con.printf("%s\n", helpText)
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-in:
			if !ok {
				quit()
				return nil
			}
		}

		cmd, err := parseCommand(line)
		if err != nil {
			a.con.printf("%v\n", err)
			continue
		}
		s := a.cur.Load()

		switch cmd.kind {
		case cmdQuit:
			quit()
			return nil
		case cmdHelp:
			a.con.printf("%s\n", helpText)
		case cmdSearch, cmdCancel:
			if a.mm == nil {
				a.con.printf("matchmaking is off when --session is given\n")
				break
			}
			if cmd.kind == cmdSearch {
				a.mm.StartSearch()
			} else {
				a.mm.CancelSearch()
			}
		case cmdStatus:
			if s == nil {
				a.con.printf("no game yet\n")
				break
			}
			v, err := s.State(ctx)
			if err != nil {
				a.con.printf("%v\n", err)
				break
			}
			a.con.describe(v)
		case cmdAbandon:
			if s != nil {
				s.Post(session.Abandon{})
			}
		case cmdDrag:
			if s == nil {
				a.con.printf("no game yet\n")
				break
			}
			m := a.metrics()
			s.Post(session.PointerDown{Point: m.CellCenter(cmd.from)})
			s.Post(session.PointerMove{Point: m.CellCenter(cmd.to)})
			s.Post(session.PointerUp{})
		}
	}
}

func (a *app) metrics() grid.Metrics {
	return grid.Metrics{CellSize: a.cfg.Board.CellSize, GapSize: a.cfg.Board.GapSize}
}

// lines feeds stdin into a channel so the command loop can also watch ctx.
// A blocked read still outlives ctx until the next newline or EOF.
func lines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
