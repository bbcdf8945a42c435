package main

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/repositories"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Dev bootstrap: mirrors two conversations with their memberships into a
// fresh store and mints one token per user, ready to paste into CHAT_TOKEN.
func main() {
	_ = godotenv.Load()
	badgerPath := envOr("BADGER_FILEPATH", "./chat_data")
	secret := envOr("JWT_SECRET", "dev-secret-change-me")

	db, err := badger.Open(badger.DefaultOptions(badgerPath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromString("warn")
	memberships := repositories.NewMembershipRepository(db, logger)
	conversations := repositories.NewConversationRepository(db, logger)

	color.Green.Println("🚀 chat-relay: seeding dev data...")

	users := []domain.Identity{
		{ID: "u-alice", Name: "Alice", AvatarURL: "https://example.com/a/alice.png"},
		{ID: "u-bob", Name: "Bob", AvatarURL: "https://example.com/a/bob.png"},
		{ID: "u-carol", Name: "Carol"},
	}

	seed := []struct {
		conversation domain.Conversation
		members      []domain.UserID
	}{
		{
			conversation: domain.Conversation{ID: "c-general", Type: domain.ConversationGroup, LastActivityAt: time.Now().UTC()},
			members:      []domain.UserID{"u-alice", "u-bob", "u-carol"},
		},
		{
			conversation: domain.Conversation{ID: "c-alice-bob", Type: domain.ConversationDM, LastActivityAt: time.Now().UTC()},
			members:      []domain.UserID{"u-alice", "u-bob"},
		},
	}

	for _, entry := range seed {
		if err := conversations.Create(entry.conversation); err != nil {
			log.Fatalf("Failed to create conversation %s: %v", entry.conversation.ID, err)
		}
		for _, member := range entry.members {
			if err := memberships.AddMember(entry.conversation.ID, member, "member"); err != nil {
				log.Fatalf("Failed to add %s to %s: %v", member, entry.conversation.ID, err)
			}
		}
		fmt.Printf("💬 %s (%s) with %d members\n",
			entry.conversation.ID, entry.conversation.Type, len(entry.members))
	}

	fmt.Println()
	for _, user := range users {
		token, err := auth.GenerateToken(user, []byte(secret), 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to mint token for %s: %v", user.ID, err)
		}
		color.Cyan.Printf("%s (%s):\n", user.Name, user.ID)
		fmt.Printf("  %s\n\n", token)
	}

	color.Green.Println("✅ Done! Export one token as CHAT_TOKEN and start the client.")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
