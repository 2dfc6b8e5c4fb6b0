package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatrelay/internal/models"
	"chatrelay/pkg/client"
)

func main() {
	var (
		baseURL  = flag.String("server", "http://localhost:8083", "server base URL")
		userID   = flag.String("user", "", "user id for this session")
		username = flag.String("name", "", "display name (defaults to user id)")
		email    = flag.String("email", "", "email address")
		room     = flag.String("room", "general", "room to join")
	)
	flag.Parse()

	if *userID == "" {
		log.Fatal("chatcli: -user is required")
	}
	if *username == "" {
		*username = *userID
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		BaseURL: *baseURL,
		UserID:  *userID,
		OnMessage: func(msg models.EnrichedMessage) {
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), msg.SenderUsername, msg.Content)
		},
		OnRoster: func(users []models.User) {
			online := 0
			for _, u := range users {
				if u.IsOnline {
					online++
				}
			}
			fmt.Printf("* roster: %d users, %d online\n", len(users), online)
		},
	})

	if _, err := c.Register(ctx, *username, *email); err != nil {
		log.Fatalf("chatcli: register: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("chatcli: connect: %v", err)
	}
	defer c.Close()

	if err := c.UpdateStatus(ctx, true); err != nil {
		log.Printf("chatcli: status update failed: %v", err)
	}
	defer c.UpdateStatus(context.Background(), false)

	if err := c.JoinRoom(ctx, *room); err != nil {
		log.Fatalf("chatcli: join %s: %v", *room, err)
	}
	for _, msg := range c.History(*room) {
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), msg.SenderUsername, msg.Content)
	}
	fmt.Printf("joined %s as %s. /more loads history, /who lists users, /quit exits.\n", *room, *username)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nbye")
			return
		case <-c.Done():
			log.Println("chatcli: connection lost")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			switch {
			case line == "/quit":
				return
			case line == "/more":
				if err := c.LoadMore(ctx); err != nil {
					log.Printf("chatcli: load more: %v", err)
					continue
				}
				fmt.Printf("* %d messages held\n", len(c.History(*room)))
			case line == "/who":
				for _, u := range c.Roster() {
					marker := " "
					if u.IsOnline {
						marker = "*"
					}
					fmt.Printf("%s %s\n", marker, u.Username)
				}
			default:
				if _, err := c.Send(ctx, line, nil); err != nil {
					log.Printf("chatcli: send: %v", err)
				}
			}
		}
	}
}
