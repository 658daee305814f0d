package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sharpie78/nova/api"
	"github.com/sharpie78/nova/bridge"
	"github.com/sharpie78/nova/chatbot"
)

var errQuit = errors.New("quit")

//runChat runs the editor bridge and the input loop until either stops
func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncSettings(ctx)
	if err := session.Restore(ctx); err != nil {
		return err
	}

	clientID, err := bridge.ClientID(ctx, st)
	if err != nil {
		return err
	}
	buffer := bridge.NewBuffer("", "")
	conn, err := bridge.NewConn(config.Backend, clientID, buffer, logger.Named("bridge"))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink := chatbot.NewWriterSink(out)
	sink.ShowRationales = config.ShowThinking
	disp := chatbot.NewDispatcher(session, sink, logger.Named("dispatcher"))
	defer disp.Wait()

	r := &repl{out: out, sink: sink, disp: disp, buffer: buffer}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return r.run(gctx, cmd.InOrStdin())
	})
	return g.Wait()
}

type repl struct {
	out    io.Writer
	sink   chatbot.RenderSink
	disp   *chatbot.Dispatcher
	buffer *bridge.Buffer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(in)
		s.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	p := session.Prefs()
	fmt.Fprintf(r.out, "Nova (%s, model: %s). /quit to leave.\n", config.Backend, orNone(p.Model))

	for {
		fmt.Fprint(r.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			err := r.command(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				r.sink.ShowError(err.Error())
			}
			continue
		}

		switch err := r.disp.Send(ctx, line); {
		case errors.Is(err, chatbot.ErrNoModel):
			r.sink.ShowNotice("No model selected. Use /model <name>.")
		case err != nil:
			logger.Debug("turn failed", zap.Error(err))
		}
	}
}

func (r *repl) command(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	p := session.Prefs()

	switch name {
	case "/quit", "/exit":
		return errQuit

	case "/new":
		if err := session.NewChat(ctx); err != nil {
			return err
		}
		r.sink.ShowNotice("Started a new chat.")

	case "/save":
		id, err := session.Save(ctx, arg)
		if err != nil {
			return err
		}
		r.sink.ShowNotice("Saved chat " + id)

	case "/agent":
		var enabled bool
		switch strings.ToLower(arg) {
		case "on":
			enabled = true
		case "off":
		default:
			return errors.New("usage: /agent on|off")
		}
		if err := session.SetAgent(ctx, enabled, p.AgentHint); err != nil {
			return err
		}
		r.sink.ShowNotice(fmt.Sprintf("Agent mode %s (%s).", strings.ToLower(arg), p.AgentHint))

	case "/hint":
		hint := api.ParseAgentHint(arg)
		if err := session.SetAgent(ctx, p.AgentEnabled, hint); err != nil {
			return err
		}
		r.sink.ShowNotice("Agent hint: " + string(hint))

	case "/model":
		if arg == "" {
			models, err := client.Models(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				mark := " "
				if m == p.Model {
					mark = "*"
				}
				fmt.Fprintf(r.out, "%s %s\n", mark, m)
			}
			return nil
		}
		if err := session.SelectModel(ctx, arg); err != nil {
			return err
		}
		r.sink.ShowNotice("Model: " + arg)

	case "/editor":
		fmt.Fprintln(r.out, r.buffer.Text())

	default:
		return fmt.Errorf("unknown command %s", name)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
