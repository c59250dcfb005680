package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certwise/certprep-backend/internal/config"
	"github.com/certwise/certprep-backend/internal/logger"
	"github.com/certwise/certprep-backend/internal/service"
)

func main() {
	var userIDStr, name string
	flag.StringVar(&userIDStr, "user-id", "", "Candidate UUID (random when omitted)")
	flag.StringVar(&name, "name", "", "Candidate display name embedded in the claims")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	fmt.Println("=== Mint Candidate Token ===")

	userID := uuid.New()
	if userIDStr != "" {
		parsed, err := uuid.Parse(userIDStr)
		if err != nil {
			fmt.Println("Error: user-id must be a valid UUID")
			return
		}
		userID = parsed
	}

	// ─── Issue Token ───────────────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	token, expiresAt, err := authService.IssueToken(userID, name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Printf("User ID: %s\n", userID)
	if name != "" {
		fmt.Printf("Name:    %s\n", name)
	}
	fmt.Printf("Expires: %s\n", expiresAt.Format(time.RFC3339))
	fmt.Printf("\n%s\n", token)
}
