package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"grocerybuddy/internal/api"
	"grocerybuddy/internal/cache"
	"grocerybuddy/internal/config"
	"grocerybuddy/internal/credstore"
	"grocerybuddy/internal/history"
	"grocerybuddy/internal/list"
	"grocerybuddy/internal/logging"
	"grocerybuddy/internal/membership"
	"grocerybuddy/internal/session"
)

// main is a terminal stand-in for the mobile router: it restores or creates
// a session, starts both synchronizers, and prints their snapshots until
// interrupted or logged out.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0700); err != nil {
		log.Fatalf("create state dir: %v", err)
	}
	snapshots, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Fatalf("open snapshot cache: %v", err)
	}
	defer snapshots.Close()

	store := credstore.NewFileStore(cfg.TokenPath, cfg.Passphrase)
	client := api.NewClient(cfg.APIURL)
	groups := membership.New()

	authLost := make(chan struct{}, 1)
	sess := session.NewManager(store, client, groups, logger,
		session.WithAuthChanged(func(authenticated bool) {
			if !authenticated {
				select {
				case authLost <- struct{}{}:
				default:
				}
			}
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess.Restore()
	if !sess.Authenticated() {
		if cfg.Email == "" || cfg.Password == "" {
			log.Fatal("no stored session; set GROCERYBUDDY_EMAIL and GROCERYBUDDY_PASSWORD to sign in")
		}
		if err := sess.SignIn(ctx, cfg.Email, cfg.Password); err != nil {
			log.Fatalf("sign in: %v", err)
		}
	}

	if err := sess.EnsureGroups(ctx); err != nil {
		logger.Error("fetch group memberships", "error", err)
	}

	authRequired := func() {
		logger.Warn("session no longer valid, sign-in required")
	}

	groceries := list.New(client, sess, groups, logger,
		list.WithCache(snapshots),
		list.WithInterval(cfg.PollInterval),
		list.WithAuthRequired(authRequired))
	purchases := history.New(client, sess, groups, logger,
		history.WithCache(snapshots),
		history.WithInterval(cfg.PollInterval),
		history.WithAuthRequired(authRequired))

	groceries.Start(ctx)
	purchases.Start(ctx)
	defer purchases.Stop()
	defer groceries.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	render := time.NewTicker(cfg.PollInterval)
	defer render.Stop()

	fmt.Println("Grocery Buddy - press Ctrl-C to quit")
	for {
		select {
		case <-render.C:
			printList(groceries.Snapshot())
			printHistory(purchases.Snapshot())
		case <-authLost:
			fmt.Println("\nSession ended.")
			return
		case <-quit:
			fmt.Println("\nShutting down...")
			return
		}
	}
}

func printList(snap list.Snapshot) {
	switch snap.State {
	case list.StateIdle, list.StateLoading:
		fmt.Println("Loading grocery list...")
	case list.StateEmpty:
		fmt.Println("Grocery list is empty.")
	case list.StateFailed:
		fmt.Printf("Grocery list unavailable: %v\n", snap.LastError)
	case list.StateReady:
		fmt.Println("My Grocery List")
		for _, category := range snap.List.Categories() {
			fmt.Printf("  %s\n", category)
			for _, item := range snap.List[category] {
				fmt.Printf("    - %s\n", item.Item)
			}
		}
		if snap.LastError != nil {
			fmt.Printf("  (stale: last refresh failed: %v)\n", snap.LastError)
		}
	}
}

func printHistory(snap history.Snapshot) {
	if snap.State != history.StateReady {
		return
	}
	fmt.Println("Past purchases")
	for _, bucket := range snap.Transactions.Buckets() {
		date, err := history.FormatBucketDate(bucket)
		if err != nil {
			date = bucket
		}
		fmt.Printf("  %s (%d items, purchased by %s)\n",
			date, len(snap.Transactions[bucket]), snap.Transactions.Buyer(bucket))
	}
}
