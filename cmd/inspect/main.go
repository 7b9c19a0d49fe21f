// Command inspect prints what the server stored: the history of a chat,
// its known members, and can mint a development token.
package main

import (
	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/repositories"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	chatID := flag.String("chat", "", "Chat whose history is printed")
	cursor := flag.String("cursor", "", "Resume the history after this cursor")
	limit := flag.Int("limit", 50, "Maximum number of messages printed")
	tokenFor := flag.String("token", "", "Print a development token for this user id and exit")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "Secret used with -token")
	ttl := flag.Duration("ttl", 24*time.Hour, "Lifetime of the token printed by -token")
	flag.Parse()

	if *tokenFor != "" {
		printToken(*secret, domain.UserID(*tokenFor), *ttl)
		return
	}
	if *chatID == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Read-only so it can run next to the server
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromLevel(slog.LevelWarn)
	messages := repositories.NewMessageRepository(db, logger, limit)
	membership := repositories.NewMembershipRepository(db, logger)

	members, err := membership.MembersOf(domain.ChatID(*chatID))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(color.New(color.FgCyan, color.OpBold).Render("Chat " + *chatID))
	fmt.Println("Members: " + strings.Join(lo.Map(members, func(u domain.UserID, _ int) string { return string(u) }), ", "))

	var from *string
	if *cursor != "" {
		from = cursor
	}
	history, next, err := messages.ListByChat(domain.ChatID(*chatID), from)
	if err != nil {
		log.Fatal(err)
	}
	printHistory(history)
	if next != nil && *next != "" && len(history) == *limit {
		fmt.Println("Next cursor: " + *next)
	}
}

func printHistory(history []domain.Message) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Created", "ID", "Sender", "Status", "Content", "Attachments"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range history {
		content := m.Content
		if m.IsDeleted {
			content = color.New(color.FgGray).Render(content)
		}
		table.Append([]string{
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.ID.String()[:8],
			string(m.SenderID),
			renderStatus(m.Status),
			content,
			fmt.Sprint(len(m.Attachments)),
		})
	}
	table.Render()
}

func renderStatus(status domain.Status) string {
	switch status {
	case domain.StatusRead:
		return color.New(color.FgGreen).Render(string(status))
	case domain.StatusDelivered:
		return color.New(color.FgYellow).Render(string(status))
	default:
		return string(status)
	}
}

func printToken(secret string, userID domain.UserID, ttl time.Duration) {
	tokens, err := auth.NewTokens(secret)
	if err != nil {
		log.Fatal(err)
	}
	token, err := tokens.GenerateToken(userID, ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}

