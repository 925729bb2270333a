// Command token prints a signed JWT for calling the exchange API locally.
//
//	token <user-id> [user|admin] [ttl]
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ayo6706/currency-converter/internal/api/middleware"
	"github.com/ayo6706/currency-converter/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return fmt.Errorf("usage: token <user-id> [user|admin] [ttl]")
	}
	role := middleware.RoleUser
	if len(args) > 1 {
		role = args[1]
	}
	if role != middleware.RoleUser && role != middleware.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	ttl := time.Hour
	if len(args) > 2 {
		parsed, err := time.ParseDuration(args[2])
		if err != nil {
			return fmt.Errorf("parse ttl: %w", err)
		}
		ttl = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	auth, err := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(args[0], role, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
