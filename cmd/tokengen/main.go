// Package main mints bearer tokens for local development and tests.
// Tokens are signed with JWT_SIGNING_KEY, falling back to the development
// key, so they only work against a server configured with the same key.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	jwttoken "gatekeeper/internal/jwt_token"
	"gatekeeper/internal/platform/config"
)

const (
	defaultIssuer   = "gatekeeper"
	defaultTokenTTL = time.Hour
)

type tokenOutput struct {
	Token     string   `json:"token"`
	UserID    string   `json:"user_id"`
	Roles     []string `json:"roles"`
	ExpiresIn string   `json:"expires_in"`
	Header    string   `json:"header"`
}

func main() {
	fs := flag.NewFlagSet("tokengen", flag.ExitOnError)
	userID := fs.String("user", "", "caller id placed in the sub claim (required)")
	roles := fs.String("roles", "", "comma-separated roles, e.g. auditor")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token time-to-live")
	jsonOutput := fs.Bool("json", false, "output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `tokengen - mint gatekeeper bearer tokens

Usage:
  tokengen -user <id> [-roles auditor] [-ttl 1h] [-json]

Environment:
  JWT_SIGNING_KEY  signing key (defaults to the development key)
  JWT_ISSUER       issuer claim (defaults to gatekeeper)`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if strings.TrimSpace(*userID) == "" {
		fs.Usage()
		os.Exit(2)
	}

	signingKey := envOr("JWT_SIGNING_KEY", config.DevJWTSigningKey)
	issuer := envOr("JWT_ISSUER", defaultIssuer)
	roleList := parseRoles(*roles)

	token, err := jwttoken.NewJWTService(signingKey, issuer, *ttl).GenerateToken(*userID, roleList)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tokenOutput{
			Token:     token,
			UserID:    *userID,
			Roles:     roleList,
			ExpiresIn: ttl.String(),
			Header:    "Authorization: Bearer <token>",
		}); err != nil {
			fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if signingKey == config.DevJWTSigningKey {
		color.New(color.FgYellow, color.Bold).Fprintln(os.Stderr, "warning: signed with the development key")
	}
	fmt.Println(token)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseRoles(roles string) []string {
	result := []string{}
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}
