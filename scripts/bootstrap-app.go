// Command bootstrap-app registers Apps and manages the operator key
// outside the request path.
//
//	go run ./scripts app -app-id guild-1 -owner-id 1234 -name "My Bot"
//	go run ./scripts operator-key
//	go run ./scripts hash-operator-key -key kg_op_...
//	go run ./scripts audit -app-id guild-1 -limit 20
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "app":
		err = runApp(os.Args[2:])
	case "operator-key":
		err = runOperatorKey(os.Args[2:])
	case "hash-operator-key":
		err = runHashOperatorKey(os.Args[2:])
	case "audit":
		err = runAudit(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: bootstrap-app <app|operator-key|hash-operator-key|audit> [flags]")
}

func connect(ctx context.Context, databaseURL string, migrate bool) (*repository.Repository, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if migrate {
		if err := repository.Migrate(ctx, databaseURL); err != nil {
			return nil, err
		}
	}
	repo, err := repository.New(ctx, databaseURL, repository.Options{MaxConns: 2, MinConns: 0})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return repo, nil
}

func runApp(args []string) error {
	fs := flag.NewFlagSet("app", flag.ExitOnError)
	var (
		databaseURL = fs.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		appID       = fs.String("app-id", "", "App identifier (required)")
		ownerID     = fs.String("owner-id", "", "Owner's Discord ID (required)")
		name        = fs.String("name", "", "Display name (defaults to app-id)")
		enableOwner = fs.Bool("enable-owner", true, "Record the owner as an enabled requester")
		migrate     = fs.Bool("migrate", false, "Apply migrations first")
		format      = fs.String("format", "plain", "Output format: plain or json")
	)
	_ = fs.Parse(args)

	if strings.TrimSpace(*appID) == "" || strings.TrimSpace(*ownerID) == "" {
		return errors.New("-app-id and -owner-id are required")
	}
	if *name == "" {
		*name = *appID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := connect(ctx, *databaseURL, *migrate)
	if err != nil {
		return err
	}
	defer repo.Close()

	app := &model.App{
		AppID:     *appID,
		OwnerID:   *ownerID,
		Name:      *name,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateApp(ctx, app); err != nil {
		if errors.Is(err, repository.ErrAppExists) {
			return fmt.Errorf("app %s already exists", *appID)
		}
		return fmt.Errorf("create app: %w", err)
	}

	if *enableOwner {
		if _, err := repo.UpsertUserEnabled(ctx, *ownerID, true); err != nil {
			return fmt.Errorf("enable owner: %w", err)
		}
	}

	return emit(*format, app, app.AppID)
}

func runOperatorKey(args []string) error {
	fs := flag.NewFlagSet("operator-key", flag.ExitOnError)
	format := fs.String("format", "plain", "Output format: plain or json")
	_ = fs.Parse(args)

	generated, err := auth.GenerateOperatorKey()
	if err != nil {
		return fmt.Errorf("generate operator key: %w", err)
	}

	out := struct {
		Key  string `json:"key"`
		Hash string `json:"hash"`
	}{generated.Plaintext, generated.Hash}

	return emit(*format, out, fmt.Sprintf("key:  %s\nOPERATOR_KEY_HASH=%s", out.Key, out.Hash))
}

func runHashOperatorKey(args []string) error {
	fs := flag.NewFlagSet("hash-operator-key", flag.ExitOnError)
	key := fs.String("key", "", "Existing operator key to hash (required)")
	_ = fs.Parse(args)

	if *key == "" {
		return errors.New("-key is required")
	}
	hash, err := auth.HashOperatorKey(*key)
	if err != nil {
		return fmt.Errorf("hash operator key: %w", err)
	}
	fmt.Println(hash)
	return nil
}

func runAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	var (
		databaseURL = fs.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		appID       = fs.String("app-id", "", "App identifier (required)")
		limit       = fs.Int("limit", 50, "Max events to show")
	)
	_ = fs.Parse(args)

	if *appID == "" {
		return errors.New("-app-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := connect(ctx, *databaseURL, false)
	if err != nil {
		return err
	}
	defer repo.Close()

	events, err := repository.NewKeyEventRepository(repo).ListByApp(ctx, *appID, *limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func emit(format string, v any, plain string) error {
	switch strings.ToLower(format) {
	case "plain":
		fmt.Println(plain)
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return errors.New("invalid format; use plain or json")
	}
}
