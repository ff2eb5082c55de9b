// Package main implements connect-probe, a terminal consumer of the client
// core: it signs in, lists the catalog and conversations, and tails realtime
// chat events until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/afrobizconnect/client-go/internal/app"
	"github.com/afrobizconnect/client-go/internal/app/domain/booking"
	"github.com/afrobizconnect/client-go/internal/app/domain/chat"
	"github.com/afrobizconnect/client-go/internal/app/domain/user"
	"github.com/afrobizconnect/client-go/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	email := flag.String("email", "", "Sign in with this email")
	password := flag.String("password", "", "Sign in with this password")
	tail := flag.Bool("tail", false, "Stay connected and print realtime chat events")
	flag.Parse()

	if err := run(*configPath, *email, *password, *tail); err != nil {
		fmt.Fprintf(os.Stderr, "connect-probe: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, email, password string, tail bool) error {
	cfg := config.LoadOrDefault(configPath)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return err
	}

	if email != "" {
		u, err := a.Session.SignIn(ctx, user.Credentials{Email: email, Password: password})
		if err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		fmt.Printf("signed in as %s %s <%s>\n", u.FirstName, u.LastName, u.Email)
		if err := a.ConnectRealtime(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "realtime channel unavailable: %v\n", err)
		}
	} else if u := a.Session.CurrentUser(); u != nil {
		fmt.Printf("restored session for %s %s <%s>\n", u.FirstName, u.LastName, u.Email)
	} else {
		fmt.Println("no session; browsing anonymously")
	}

	services, err := a.Booking.LoadServices(ctx, booking.ServiceFilters{Limit: 10})
	if err != nil {
		return fmt.Errorf("load services: %w", err)
	}
	fmt.Printf("catalog: %d services\n", len(services))
	for _, svc := range services {
		fmt.Printf("  %-40s %s %.2f %s\n", svc.Name, svc.Price.Currency, svc.Price.Amount, svc.Category)
	}

	if a.Session.IsAuthenticated() {
		rooms, err := a.Chat.LoadRooms(ctx, chat.RoomFilters{})
		if err != nil {
			return fmt.Errorf("load rooms: %w", err)
		}
		fmt.Printf("conversations: %d\n", len(rooms))
		for _, room := range rooms {
			preview := ""
			if room.LastMessage != nil {
				preview = room.LastMessage.Content
			}
			fmt.Printf("  [%d unread] %s: %s\n", room.UnreadCount, room.Name, preview)
		}
	}

	if !tail {
		return nil
	}

	remove := a.Realtime.AddHandler(chat.EventMessageSent, func(ev chat.Event) {
		if e, ok := ev.(chat.MessageEvent); ok {
			fmt.Printf("[%s] %s: %s\n", e.Message.CreatedAt.Format("15:04:05"), e.Message.SenderID, e.Message.Content)
		}
	})
	defer remove()

	fmt.Println("tailing chat events, Ctrl-C to stop")
	<-ctx.Done()
	return nil
}
