// Command chat is a terminal client of the gateway. Replies are revealed
// one character at a time; Ctrl+C during a reveal stops it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"companion/app/client/companion"
	"companion/app/config"
	"companion/app/service/history"
	"companion/app/service/renderer"
	"companion/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/peterh/liner"
)

const (
	userPrompt = "you> "
	botPrefix  = "bot> "
)

func main() {
	mylog.Preinit()

	cfg, err := config.LoadClient(config.Path())
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	store, err := history.NewStore(
		history.Driver(cfg.Client.HistoryDriver),
		history.WithPath(cfg.Client.HistoryPath),
		history.WithKey(cfg.Client.SessionKey),
	)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &printer{}
	session, err := renderer.NewSession(ctx, companion.NewClient(cfg.Client), store,
		renderer.WithTickInterval(cfg.Client.TickInterval),
		renderer.WithListener(out.update),
	)
	if err != nil {
		log.Fatalf("session init failed: %v", err)
	}

	for _, msg := range session.Messages() {
		if msg.Sender == history.SenderUser {
			fmt.Println(userPrompt + msg.Text)
		} else {
			fmt.Println(botPrefix + msg.Text)
		}
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("Type a message, /clear to wipe the history, /quit to exit.")

	for {
		input, err := line.Prompt(userPrompt)
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) {
				slog.Debug("Prompt closed", slog.Any("error", err))
			}
			fmt.Println()
			return
		}

		input = strings.TrimSpace(input)

		switch input {
		case "":
			continue

		case "/quit":
			return

		case "/clear":
			if err = session.Clear(ctx); err != nil {
				slog.Error("Failed to clear history", slog.Any("error", err))
				continue
			}
			fmt.Println("History cleared.")
			continue
		}

		line.AppendHistory(input)

		if err = session.Send(ctx, input); err != nil {
			slog.Warn("Message not sent", slog.Any("error", err))
			continue
		}

		waitExchange(session)
	}
}

// waitExchange blocks until the reply is fully shown or Ctrl+C stops it.
func waitExchange(session *renderer.Session) {
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt)
	defer signal.Stop(sigint)

	for {
		select {
		case <-session.Done():
			return
		case <-sigint:
			session.Cancel()
		}
	}
}

// printer writes the growing tail of the bot message to stdout.
type printer struct {
	mu      sync.Mutex
	shown   int
	started bool
}

func (p *printer) update(state renderer.State, messages []history.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(messages) > 0 && messages[len(messages)-1].Sender == history.SenderBot {
		runes := []rune(messages[len(messages)-1].Text)

		if !p.started {
			fmt.Print(botPrefix)
			p.started = true
		}

		if len(runes) > p.shown {
			fmt.Print(string(runes[p.shown:]))
			p.shown = len(runes)
		}
	}

	if state == renderer.StateIdle && p.started {
		fmt.Println()
		p.started = false
		p.shown = 0
	}
}
