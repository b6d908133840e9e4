// Command tokengen prints a bearer token for a principal, signed with the
// server's JWT settings. It is meant for local development and smoke tests.
package main

import (
	"flag"
	"fmt"
	"os"

	jwttoken "soulcert/internal/jwt_token"
	"soulcert/internal/platform/config"
	id "soulcert/pkg/domain"
)

func main() {
	principal := flag.String("principal", "", "principal UUID (generated when empty)")
	flag.Parse()

	if err := run(*principal); err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
}

func run(raw string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	p := id.NewPrincipalID()
	if raw != "" {
		if p, err = id.ParsePrincipalID(raw); err != nil {
			return err
		}
	}

	svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, jwttoken.DefaultAudience)
	token, err := svc.GenerateAccessToken(p, cfg.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Printf("principal: %s\ntoken: %s\n", p, token)
	return nil
}
