// Command collab is a headless editor client. It opens one file on the relay,
// appends each stdin line to it as a local edit and prints what a UI would
// render.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/uminmay/collaborative-ai-editor/internal/config"
	"github.com/uminmay/collaborative-ai-editor/internal/connection"
	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, serverURL, user, path string
	var verbose bool

	flagSet := pflag.NewFlagSet("collab", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML config file")
	flagSet.StringVar(&serverURL, "server", "", "relay websocket URL (overrides the config)")
	flagSet.StringVar(&user, "user", "", "user name to connect as (overrides the config)")
	flagSet.StringVar(&path, "path", "", "file to open")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if path == "" {
		return errors.New("--path is required")
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if user != "" {
		cfg.User = user
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	url, err := cfg.URL()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := loop.New(nil)
	transport := &connection.WebSocketTransport{
		URL:       url,
		Sched:     l,
		WriteWait: cfg.WriteWait,
		PongWait:  cfg.PongWait,
		Logger:    logger,
	}
	conn := connection.NewManager(transport, l, connection.Options{
		BaseDelay:   cfg.Backoff.BaseDelay,
		MaxDelay:    cfg.Backoff.MaxDelay,
		MaxAttempts: cfg.Backoff.MaxAttempts,
		Logger:      logger,
	})
	manager := session.NewManager(conn, l, &printView{out: os.Stdout}, session.Config{
		SaveDelay:         cfg.SaveDelay,
		CompletionDelay:   cfg.CompletionDelay,
		CompletionTimeout: cfg.CompletionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		AcceptKey:         cfg.AcceptKey,
		Logger:            logger,
	})

	l.Post(func() {
		manager.Open(path)
		manager.Connect()
	})

	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(ctx) }()

	quit := make(chan struct{})
	go readCommands(os.Stdin, l, manager, cfg.AcceptKey, quit)

	select {
	case <-quit:
	case <-ctx.Done():
	case err := <-loopDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	if err := l.Call(context.Background(), manager.Close); err != nil && !errors.Is(err, loop.ErrStopped) {
		return err
	}
	l.Stop()
	return nil
}

// readCommands turns stdin lines into edits until EOF or ":quit".
func readCommands(r io.Reader, l *loop.Loop, manager *session.Manager, acceptKey string, quit chan<- struct{}) {
	defer close(quit)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case ":quit":
			return
		case ":accept":
			l.Post(func() {
				if !manager.Key(acceptKey) {
					fmt.Println("[status] no suggestion to accept")
				}
			})
			continue
		}

		l.Post(func() {
			f := manager.File()
			if f == nil {
				fmt.Println("[status] no file open")
				return
			}
			content := f.Document.Content() + line + "\n"
			if err := manager.Edit(content, model.RuneLen(content)); err != nil {
				fmt.Printf("[status] edit rejected: %v\n", err)
			}
		})
	}
}

// printView renders observable client state as lines of text.
type printView struct {
	out io.Writer
}

func (v *printView) ContentChanged(content string, caret int) {
	fmt.Fprintf(v.out, "[content] caret=%d\n%s\n[/content]\n", caret, content)
}

func (v *printView) PresenceChanged(participants []model.Participant) {
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		name := p.Username
		if p.CursorPosition != nil {
			name = fmt.Sprintf("%s@%d", name, *p.CursorPosition)
		}
		names = append(names, name)
	}
	fmt.Fprintf(v.out, "[presence] %d editing: %s\n", len(participants), strings.Join(names, ", "))
}

func (v *printView) SuggestionChanged(p *model.PendingCompletion) {
	if p == nil {
		fmt.Fprintln(v.out, "[suggestion] none")
		return
	}
	fmt.Fprintf(v.out, "[suggestion] %q at %d (:accept to insert)\n", p.SuggestedText, p.InsertionOffset)
}

func (v *printView) StatusChanged(s model.Status) {
	fmt.Fprintf(v.out, "[status] %s: %s\n", s.Kind, s.Message)
}

func (v *printView) ConnectionChanged(e connection.StateEvent) {
	switch {
	case e.Err != nil:
		fmt.Fprintf(v.out, "[connection] %s after attempt %d: %v\n", e.State, e.Attempt, e.Err)
	default:
		fmt.Fprintf(v.out, "[connection] %s\n", e.State)
	}
}
