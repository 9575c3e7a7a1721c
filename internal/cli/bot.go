package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lazypower/statuscast/internal/channel"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long:  "Run the Telegram bot without the HTTP API. Needs TELEGRAM_BOT_TOKEN or telegram.token in the config.",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	eng, err := newEngine(db)
	if err != nil {
		return err
	}

	bot, err := channel.NewTelegram(cfg.Telegram, eng, db, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	bot.Stop()
	return nil
}
