package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"deckstream/internal/adapter/render"
	"deckstream/internal/adapter/tui/live"
	"deckstream/internal/domain"
)

type streamOptions struct {
	presentationID string
	kind           domain.SessionKind
	app            appOptions
	live           bool
	plain          bool
	asJSON         bool
	width          int
}

func parseStreamArgs(args []string) (streamOptions, error) {
	c := parseArgs(args, "live", "plain", "json")
	if len(c.pos) != 1 {
		return streamOptions{}, fmt.Errorf("usage: deckstream stream <presentation-id> [--kind outline|deck]")
	}
	kind, err := domain.ParseSessionKind(c.str("kind", string(domain.KindOutline)))
	if err != nil {
		return streamOptions{}, err
	}
	opts := streamOptions{
		presentationID: c.pos[0],
		kind:           kind,
		live:           c.bool("live"),
		plain:          c.bool("plain"),
		asJSON:         c.bool("json"),
		app:            appOptions{replayPath: c.str("replay", "")},
	}
	if opts.width, err = c.int("width", render.DefaultWidth); err != nil {
		return streamOptions{}, err
	}
	if opts.app.paceBytes, err = c.int("pace", 0); err != nil {
		return streamOptions{}, err
	}
	if opts.app.paceDelay, err = c.duration("pace-delay", 20*time.Millisecond); err != nil {
		return streamOptions{}, err
	}
	return opts, nil
}

func runStream(args []string, out io.Writer) error {
	opts, err := parseStreamArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := newApp(ctx, cfg, opts.app)
	if err != nil {
		return err
	}
	defer cleanup()

	return streamSession(ctx, a, opts, out)
}

// streamSession runs one session to its end and prints the result. With
// --live the session is followed in a Bubble Tea view until it finishes.
func streamSession(ctx context.Context, a *app, opts streamOptions, out io.Writer) error {
	r := render.New(a.resolver, a.log,
		render.WithWidth(opts.width),
		render.WithMarkdown(!opts.plain),
		render.WithDefaultGroup(a.cfg.Layouts.DefaultGroup),
	)

	if _, err := a.manager.Start(opts.presentationID, opts.kind); err != nil {
		fe := render.Humanize(err)
		fmt.Fprintln(out, fe.Format(render.DetectSymbols()))
		return err
	}

	var (
		res     domain.SessionResult
		waitErr error
	)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, waitErr = a.manager.Wait(context.WithoutCancel(ctx), opts.presentationID)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = a.manager.Cancel(opts.presentationID)
		case <-finished:
		}
	}()

	if opts.live && !opts.asJSON {
		runLiveView(a, r, opts.presentationID, out, finished)
	}
	<-finished

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, r.Result(ctx, res))
	}

	if waitErr != nil && !errors.Is(waitErr, domain.ErrCancelled) {
		return waitErr
	}
	return nil
}

// runLiveView runs the live view until the session finishes. A terminal the
// program cannot drive is logged and the plain result is printed instead.
func runLiveView(a *app, r *render.Renderer, presentationID string, out io.Writer, finished <-chan struct{}) {
	model := live.New(live.Deps{
		Sessions:       a.manager,
		Bus:            a.bus,
		Renderer:       r,
		PresentationID: presentationID,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(out))
	model.SetProgramSender(program.Send)

	go func() {
		<-finished
		program.Send(live.DoneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		a.log.Warn("live view unavailable", "error", err)
	}
}
