package main

import (
	"bufio"
	"chat-relay/auth"
	"chat-relay/client"
	"chat-relay/gateway"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	ServerURL      string `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	Token          string `env:"CHAT_TOKEN,required=true"`
	ConversationID string `env:"CHAT_CONVERSATION_ID,required=true"`
	LogLevel       string `env:"LOG_LEVEL,default=warn"`
}

func main() {
	if err := run(); err != nil {
		color.Red.Printf("Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// The gateway verifies the signature; here we only need the identity
	// baked into the token to label our own messages.
	identity, err := unverifiedIdentity(config.Token)
	if err != nil {
		return fmt.Errorf("token is not a chat credential: %w", err)
	}

	store := client.NewStore()
	c := client.NewClient(config.ServerURL, config.Token, store, log, printEvent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	color.Green.Printf("Connected to %s as %s\n", config.ServerURL, identity.Name)

	readErr := make(chan error, 1)
	go func() { readErr <- c.Run(ctx) }()

	// Catch up on whatever happened while we were away.
	if err := c.Resync([]string{config.ConversationID}); err != nil {
		return err
	}

	color.Gray.Println("Type a message, or /history /sync /quit")
	go inputLoop(c, store, identity, config.ConversationID)

	select {
	case <-ctx.Done():
		c.Close()
		return nil
	case err := <-readErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connection lost: %w", err)
	}
}

func inputLoop(c *client.Client, store *client.Store, identity claims, conversationID string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			c.Close()
			return
		case line == "/history":
			printHistory(store, conversationID)
		case line == "/sync":
			if err := c.Resync([]string{conversationID}); err != nil {
				color.Red.Printf("sync failed: %v\n", err)
			}
		default:
			if _, err := c.Send(conversationID, identity.UserID, identity.Name, line); err != nil {
				color.Red.Printf("send failed: %v\n", err)
			}
		}
	}
}

// printEvent renders server frames as they land; frames the store discarded
// as duplicates (our own echo included) stay silent.
func printEvent(envelope gateway.Envelope, applied bool) {
	switch payload := envelope.Payload.(type) {
	case gateway.Ack:
		color.Gray.Printf("  ✓ delivered (%s)\n", payload.MessageID[:8])
	case gateway.NewMessage:
		if applied {
			color.Cyan.Printf("[%s] ", payload.SenderName)
			fmt.Println(payload.Body)
		}
	case gateway.SyncBatch:
		color.Gray.Printf("  synced %d message(s)\n", len(payload.Messages))
	case gateway.Typing:
		if envelope.Type == gateway.TypeTypingStart {
			color.Yellow.Printf("  %s is typing...\n", payload.UserName)
		}
	case gateway.PresenceUpdate:
		state := "offline"
		if payload.Online {
			state = "online"
		}
		color.Magenta.Printf("  %s is %s\n", payload.UserID, state)
	case gateway.ErrorPayload:
		color.Red.Printf("  server: %s\n", payload.Message)
	}
}

func printHistory(store *client.Store, conversationID string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Status", "Message"})
	table.SetBorder(false)

	for _, m := range store.Messages(conversationID) {
		table.Append([]string{
			m.CreatedAt.Local().Format("15:04:05"),
			m.SenderName,
			m.Status.String(),
			m.Body,
		})
	}
	table.Render()
}

type claims struct {
	UserID string
	Name   string
}

func unverifiedIdentity(token string) (claims, error) {
	var parsed auth.CustomClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &parsed); err != nil {
		return claims{}, err
	}
	return claims{UserID: parsed.UserID, Name: parsed.Name}, nil
}
