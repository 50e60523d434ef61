// Command keyctl manages API credentials against the broker-backed
// credential store, mirroring original_source/backend/manage_keys.py's
// create/list/delete/info subcommands. Styled after the teacher's
// cmd/job-queue-system admin flag-and-subcommand dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hungson175/hd-tts/internal/broker"
	"github.com/hungson175/hd-tts/internal/config"
	"github.com/hungson175/hd-tts/internal/credential"
)

func main() {
	var configPath string
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	b := broker.New(cfg)
	defer b.Close()
	store := credential.New(b)
	ctx := context.Background()

	switch args[0] {
	case "create":
		runCreate(ctx, store, args[1:])
	case "list":
		runList(ctx, store)
	case "info":
		runInfo(ctx, store, args[1:])
	case "delete":
		runDelete(ctx, store, args[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: keyctl [-config path] <create|list|info|delete> [args]")
	fmt.Fprintln(os.Stderr, "  create <name>        mint a new API key for the named client")
	fmt.Fprintln(os.Stderr, "  list                 list all credentials and their usage")
	fmt.Fprintln(os.Stderr, "  info <key_id>        show one credential's usage")
	fmt.Fprintln(os.Stderr, "  delete <key_id>      revoke a credential")
}

func runCreate(ctx context.Context, store *credential.Store, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: keyctl create <name>")
		os.Exit(2)
	}
	secret, info, err := store.Create(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("key_id:    %s\n", info.KeyID)
	fmt.Printf("name:      %s\n", info.Name)
	fmt.Printf("api_key:   %s\n", secret)
	fmt.Println("store this key now — it will not be shown again")
}

func runList(ctx context.Context, store *credential.Store) {
	infos, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
		os.Exit(1)
	}
	if len(infos) == 0 {
		fmt.Println("no credentials")
		return
	}
	for _, info := range infos {
		lastUsed := "never"
		if !info.LastUsedAt.IsZero() {
			lastUsed = info.LastUsedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Printf("%s\t%s\trequests=%d\taudio_seconds=%.1f\tcreated=%s\tlast_used=%s\n",
			info.KeyID, info.Name, info.RequestsCount, info.AudioSeconds, info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), lastUsed)
	}
}

func runInfo(ctx context.Context, store *credential.Store, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: keyctl info <key_id>")
		os.Exit(2)
	}
	infos, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "info failed: %v\n", err)
		os.Exit(1)
	}
	for _, info := range infos {
		if info.KeyID == args[0] {
			fmt.Printf("key_id:         %s\n", info.KeyID)
			fmt.Printf("name:           %s\n", info.Name)
			fmt.Printf("created_at:     %s\n", info.CreatedAt)
			fmt.Printf("requests_count: %d\n", info.RequestsCount)
			fmt.Printf("audio_seconds:  %.1f\n", info.AudioSeconds)
			if info.LastUsedAt.IsZero() {
				fmt.Printf("last_used_at:   never\n")
			} else {
				fmt.Printf("last_used_at:   %s\n", info.LastUsedAt)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "no credential with key_id %q\n", args[0])
	os.Exit(1)
}

func runDelete(ctx context.Context, store *credential.Store, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: keyctl delete <key_id>")
		os.Exit(2)
	}
	ok, err := store.Delete(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "no credential with key_id %q\n", args[0])
		os.Exit(1)
	}
	fmt.Println("deleted")
}
