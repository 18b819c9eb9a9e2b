package mylog

import (
	"context"
	"log/slog"
	"os"

	"companion/app/config"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"
)

// AlertKey marks a record that must reach the operator channel regardless of level.
const AlertKey = "alert"

// Alert is attached to records operators should see, e.g. safety overrides.
func Alert() slog.Attr {
	return slog.Bool(AlertKey, true)
}

func consoleHandler() slog.Handler {
	return console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})
}

// Preinit installs console logging so config loading errors are readable.
func Preinit() {
	slog.SetDefault(slog.New(consoleHandler()))
}

func Init(cfg *config.Config) error {
	router := slogmulti.Router().Add(consoleHandler())

	if cfg.Log.Telegram.Token != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:     slog.LevelInfo,
				Token:     cfg.Log.Telegram.Token,
				Username:  cfg.Log.Telegram.ChatID,
				AddSource: true,
			}.NewTelegramHandler(),
			isOperatorRecord,
		)
	}

	slog.SetDefault(slog.New(router.Handler()))

	return nil
}

func isOperatorRecord(_ context.Context, r slog.Record) bool {
	if r.Level >= slog.LevelError {
		return true
	}

	alert := false
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == AlertKey {
			alert = true
			return false
		}

		return true
	})

	return alert
}
