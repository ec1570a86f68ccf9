package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Yusufzhafir/hftsim/internal/config"
	"github.com/Yusufzhafir/hftsim/internal/router/middleware"
)

// token prints a bearer token for the simulator's mutating HTTP routes.
func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	operator := flag.String("operator", "operator", "token subject")
	role := flag.String("role", middleware.RoleTrader, "role claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.HTTP.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "no jwt secret configured (set HFTSIM_JWT_SECRET or http.jwt_secret)")
		os.Exit(1)
	}

	token, claims, err := middleware.NewJWTMaker(cfg.HTTP.JWTSecret).CreateToken(*operator, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "id=%s subject=%s expires=%s\n", claims.ID, claims.Subject, claims.ExpiresAt.Time.Format(time.RFC3339))
}
