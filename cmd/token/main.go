// Command token issues a bearer token for local development against the
// ledger API. Accounts are managed by the upstream identity service in
// production; this only signs claims with the configured secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/trade-ledger/internal/config"
	"github.com/trade-ledger/internal/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	userID := flag.Uint("user", 1, "user id to put in the token")
	username := flag.String("name", "dev", "username to put in the token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	tok, err := service.NewAuthService(cfg.JWT).GenerateToken(*userID, *username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(tok.AccessToken)
}
