package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/logger"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		userID   string
		username string
		role     string
		staff    bool
		hours    int
	)
	flag.StringVar(&userID, "user", "", "Discord user ID (required)")
	flag.StringVar(&username, "username", "", "Discord username")
	flag.StringVar(&role, "role", "", "Highest guild role")
	flag.BoolVar(&staff, "staff", false, "Issue a staff token")
	flag.IntVar(&hours, "hours", 24, "Token lifetime in hours")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if userID == "" {
		flag.PrintDefaults()
		os.Exit(2)
	}

	if os.Getenv("JWT_SECRET") == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "JWT secret: ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if s := strings.TrimSpace(string(secret)); s != "" {
			cfg.JWTSecret = s
		}
	}
	cfg.JWTExpiry = time.Duration(hours) * time.Hour

	tokenType := service.TokenTypeApplicant
	if staff {
		tokenType = service.TokenTypeStaff
	}

	token, err := service.NewAuthService(cfg).GenerateToken(model.Identity{
		UserID:      userID,
		Username:    username,
		HighestRole: role,
	}, tokenType)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	log.Debug().Str("user_id", userID).Str("token_type", string(tokenType)).Dur("ttl", cfg.JWTExpiry).Msg("Token issued")
	fmt.Println(token)
}
