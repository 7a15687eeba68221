package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"topicchat/backend/internal/config"
	"topicchat/backend/internal/localization"
	"topicchat/backend/internal/models"
	"topicchat/backend/internal/storage"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  stale [limit]          list active sessions idle longer than matching.stale_after
  show <session_id>      print a session with its latest messages
  end <session_id>       end an open session
  reports [status]       list complaints (default: pending)`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("TOPICCHAT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The CLI talks to PostgreSQL through lib/pq rather than pgx.
	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	storageSvc := storage.NewStorageService(db, zap.NewNop())
	ctx := context.Background()

	command := os.Args[1]
	switch command {
	case "stale":
		limit := 50
		if len(os.Args) > 2 {
			limit, err = strconv.Atoi(os.Args[2])
			if err != nil || limit < 1 {
				fmt.Println("Invalid limit. Please provide a positive integer.")
				os.Exit(1)
			}
		}
		err = listStale(ctx, storageSvc, cfg.Matching.StaleAfter, limit)
	case "show":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin show <session_id>")
			os.Exit(1)
		}
		err = showSession(ctx, storageSvc, os.Args[2])
	case "end":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin end <session_id>")
			os.Exit(1)
		}
		texts, lerr := localization.Default()
		if lerr != nil {
			log.Fatalf("failed to load localization: %v", lerr)
		}
		err = endSession(ctx, storageSvc, texts.GetString(cfg.Locale, localization.KeyEndedByModerator), os.Args[2])
	case "reports":
		status := models.ComplaintStatusPending
		if len(os.Args) > 2 {
			status = os.Args[2]
		}
		err = listReports(ctx, storageSvc, status)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

func listStale(ctx context.Context, s storage.SessionStore, staleAfter time.Duration, limit int) error {
	sessions, err := s.ListStaleSessions(ctx, time.Now().UTC().Add(-staleAfter), limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No stale sessions.")
		return nil
	}
	for _, sess := range sessions {
		users := make([]string, 0, len(sess.Participants))
		for _, p := range sess.Participants {
			users = append(users, p.UserID)
		}
		fmt.Printf("%s\t%s\tidle %s\t%v\n", sess.SessionID, sess.Topic,
			time.Since(sess.UpdatedAt).Round(time.Second), users)
	}
	return nil
}

func showSession(ctx context.Context, s storage.SessionStore, sessionID string) error {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	msgs, err := s.ListLatestMessages(ctx, sessionID, config.ReportTranscriptSize)
	if err != nil {
		return err
	}
	sess.Messages = msgs
	out, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// endSession closes a session without notifying anyone: the CLI has no
// connection to the running hubs, so clients find out on their next request.
func endSession(ctx context.Context, s storage.SessionStore, notice, sessionID string) error {
	now := time.Now().UTC()
	msg := models.SystemMessage(sessionID, notice, now)
	_, err := s.EndSession(ctx, storage.EndParams{
		SessionID:     sessionID,
		RequireStatus: []models.SessionStatus{models.StatusSearching, models.StatusActive},
		SystemMessage: &msg,
		At:            now,
	})
	if errors.Is(err, storage.ErrConditionFailed) {
		fmt.Printf("Session %s is not open.\n", sessionID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Session %s has been ended.\n", sessionID)
	return nil
}

func listReports(ctx context.Context, s storage.ComplaintStore, status string) error {
	complaints, err := s.ListComplaints(ctx, status, 100)
	if err != nil {
		return err
	}
	if len(complaints) == 0 {
		fmt.Printf("No %s complaints.\n", status)
		return nil
	}
	for _, c := range complaints {
		fmt.Printf("%s\t%s\t%s\treported=%s\tby=%s\t%s\n",
			c.CreatedAt.Format(time.RFC3339), c.ComplaintID, c.Reason, c.ReportedUserID, c.ReporterID, c.Description)
	}
	return nil
}
