// hubwatch is a developer client: it runs the chat store for one user
// against a live daemon, printing the preview list whenever it changes and
// any local notifications the store raises.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/activityhub/activityhub/internal/chatstore"
	"github.com/activityhub/activityhub/internal/config"
	"github.com/activityhub/activityhub/internal/notify"
	"github.com/activityhub/activityhub/internal/paths"
	"github.com/activityhub/activityhub/internal/realtime"
	"github.com/activityhub/activityhub/internal/reminder"
	"github.com/activityhub/activityhub/internal/storage"
	"go.uber.org/zap"
)

type printNotifier struct{}

func (printNotifier) Notify(_ context.Context, n notify.LocalNotification) error {
	fmt.Printf("\n🔔 %s — %s\n", n.Title, n.Body)
	return nil
}

func main() {
	userFlag := flag.String("user", "", "user id to watch (required)")
	serverFlag := flag.String("server", "ws://localhost:8787/ws", "daemon feed URL")
	configFlag := flag.String("config", "", "config file path (overrides ~/.activityhub/config.toml)")
	flag.Parse()

	if *userFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: hubwatch -user <user-id> [-server ws://...]")
		os.Exit(1)
	}
	if err := run(*userFlag, *serverFlag, *configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(userID, serverURL, configPath string) error {
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	if configPath == "" {
		configPath = paths.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	db, err := storage.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	feedURL := fmt.Sprintf("%s?user_id=%s", serverURL, userID)
	feed := realtime.NewSubscriber(feedURL, logger, func(state realtime.State) {
		fmt.Printf("-- feed %s --\n", state)
	})

	store := chatstore.New(db, feed, printNotifier{}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.FetchChats(ctx, userID); err != nil {
		return err
	}
	printChats(store.Chats())

	store.Subscribe(ctx, userID)
	defer store.Unsubscribe()

	// Foreground "starting soon" sweep, same as the app would run.
	checker := reminder.New(db, printNotifier{}, logger, cfg.ReminderInterval(), cfg.ReminderLookahead())
	go checker.Run(ctx, userID)

	// The store refreshes itself on feed events; poll its snapshot and
	// reprint when it changes.
	last := fingerprint(store.Chats())
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nbye")
			return nil
		case <-ticker.C:
			chats := store.Chats()
			if fp := fingerprint(chats); fp != last {
				last = fp
				printChats(chats)
			}
		}
	}
}

func printChats(chats []chatstore.ChatPreview) {
	fmt.Printf("\n%-24s %-8s %-20s %s\n", "NAME", "UNREAD", "WHEN", "LAST MESSAGE")
	for _, c := range chats {
		fmt.Printf("%-24s %-8d %-20s %s\n",
			c.Name, c.UnreadCount, c.Timestamp.Local().Format("Jan 2 15:04"), c.LastMessage)
	}
}

func fingerprint(chats []chatstore.ChatPreview) string {
	out := ""
	for _, c := range chats {
		out += fmt.Sprintf("%s|%d|%s|%s;", c.ID, c.UnreadCount, c.LastMessage, c.Timestamp)
	}
	return out
}
