package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/juho05/log"

	"github.com/juho05/apcalt/config"
	"github.com/juho05/apcalt/repos"
	"github.com/juho05/apcalt/repos/backend"
	"github.com/juho05/apcalt/services"
)

var errUsage = errors.New("usage")

func get(ctx context.Context, store repos.ExpiringStore, args []string) error {
	if len(args) == 0 {
		fmt.Println("USAGE apcalt-cli get <key>")
		return errUsage
	}
	data, found, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("key %s does not exist", args[0])
	}
	os.Stdout.Write(data)
	fmt.Println()
	return nil
}

func del(ctx context.Context, store repos.ExpiringStore, args []string) error {
	if len(args) == 0 {
		fmt.Println("USAGE apcalt-cli delete <key>")
		return errUsage
	}
	return store.Delete(ctx, args[0])
}

func session(ctx context.Context, store repos.ExpiringStore, args []string) error {
	if len(args) == 0 {
		fmt.Println("USAGE apcalt-cli session <id>")
		return errUsage
	}
	sessionService := services.NewSessionService(store, services.SessionOptions{
		KeyPrefix: config.SessionKeyPrefix(),
		Lifetime:  config.SessionLifetime(),
	})
	sess, err := sessionService.Open(ctx, args[0])
	if err != nil {
		return err
	}
	if sess.ID() != args[0] {
		return fmt.Errorf("session %s does not exist", args[0])
	}
	creds := sess.Credentials()
	if creds == nil {
		fmt.Println("State: not logged in")
		return nil
	}
	fmt.Printf("State: %s\n", creds.State(time.Now()))
	fmt.Printf("User: %s\n", creds.UserName)
	fmt.Printf("AWS credentials expire: %s\n", creds.AWSExpire.Format(time.RFC3339))
	if creds.Account != nil {
		fmt.Printf("Account: %s (import %s), token expires: %s\n", creds.Account.ID, creds.Account.ImportID, creds.Account.Expires.Format(time.RFC3339))
	}
	return nil
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Println(`USAGE apcalt-cli <command>
COMMANDS
		- get <key>
		- delete <key>
		- session <id>
		`)
		return errUsage
	}

	ctx := context.Background()
	store, err := backend.Open(ctx, backend.Options{
		Type:         config.SessionType(),
		FilePath:     config.SessionFilePath(),
		FileMode:     config.SessionFileMode(),
		RedisURL:     config.SessionRedisURL(),
		DBConnection: config.SessionDBConnection(),
		AutoMigrate:  config.AutoMigrate(),
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	switch args[0] {
	case "get":
		err = get(ctx, store, args[1:])
	case "delete":
		err = del(ctx, store, args[1:])
	case "session":
		err = session(ctx, store, args[1:])
	default:
		err = fmt.Errorf("unknown command: %s", args[0])
	}
	return err
}

func main() {
	godotenv.Load()

	log.SetSeverity(config.LogLevel())
	log.SetOutput(config.LogFile())

	err := run(os.Args[1:])
	if errors.Is(err, errUsage) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Done.")
}
