package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	pkgconfig "github.com/inamkkkk/take-it-and-go/pkg/config"
	"github.com/inamkkkk/take-it-and-go/pkg/jwt"
)

func main() {
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	secret := flag.String("secret", pkgconfig.GetEnv("JWT_SECRET", ""), "HS256 signing secret (defaults to $JWT_SECRET)")
	userID := flag.String("user", "", "User id to put in the token")
	role := flag.String("role", string(domain.RoleShipper), "Role: shipper or traveler")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	issuer := flag.String("issuer", "take-it-and-go", "Token issuer")
	flag.Parse()

	if *secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: devtoken -user <id> [-role shipper|traveler] [-ttl 24h] [-secret <secret>]")
		os.Exit(1)
	}
	if !domain.ValidUserID(*userID) {
		fmt.Fprintf(os.Stderr, "Invalid user id %q: use letters, digits, '.' and '-'\n", *userID)
		os.Exit(1)
	}
	if !domain.Role(*role).Valid() {
		fmt.Fprintf(os.Stderr, "Invalid role %q\n", *role)
		os.Exit(1)
	}

	manager, err := jwt.NewManager(*secret, *ttl, jwt.WithIssuer(*issuer))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create token manager: %v\n", err)
		os.Exit(1)
	}

	token, expiresAt, err := manager.GenerateToken(*userID, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
}
