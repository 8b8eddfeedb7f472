// Command seed-clients registers a client application and prints its
// credentials. The secret is shown once; only its bcrypt hash is stored.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"namegate/internal/clients/models"
	clientstore "namegate/internal/clients/store"
	"namegate/internal/platform/postgres"
	id "namegate/pkg/domain"
	"namegate/pkg/secrets"
)

func newClientID() (id.ClientID, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate client id: %w", err)
	}
	return id.ParseClientID("nc_" + hex.EncodeToString(buf))
}

func run() error {
	displayName := flag.String("name", "", "client display name (required)")
	publisherDomain := flag.String("domain", "", "publisher domain, e.g. chess.example")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	flag.Parse()

	if *displayName == "" {
		flag.Usage()
		return fmt.Errorf("-name is required")
	}
	if *databaseURL == "" {
		return fmt.Errorf("DATABASE_URL or -database-url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, *databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	clientID, err := newClientID()
	if err != nil {
		return err
	}
	secret, err := secrets.Generate()
	if err != nil {
		return err
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return err
	}

	client, err := models.NewClientApplication(clientID, *displayName, *publisherDomain, hash, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := clientstore.NewPostgres(db).Create(ctx, client); err != nil {
		return fmt.Errorf("could not store client: %w", err)
	}

	fmt.Printf("client_id:     %s\n", client.ClientID)
	fmt.Printf("client_secret: %s\n", secret)
	fmt.Printf("display_name:  %s\n", client.DisplayName)
	fmt.Println("store the secret now; it cannot be recovered later")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed-clients: %v\n", err)
		os.Exit(1)
	}
}
