// firmfinder - sharded firmware catalog tooling
//
// Runs the admin console, seeds the catalog, checks cross-shard
// consistency and scrapes vendor pages for firmware listings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firmwarefinder/firmstore"
	"github.com/firmwarefinder/firmstore/internal/console"
	"github.com/redis/go-redis/v9"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "seed":
			runSeed(os.Args[2:])
			return
		case "check":
			runCheck(os.Args[2:])
			return
		case "search":
			runSearch(os.Args[2:])
			return
		case "scrape":
			runScrape(os.Args[2:])
			return
		case "reindex":
			runReindex(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}
	printHelp()
	os.Exit(2)
}

func printHelp() {
	fmt.Println(`firmfinder - sharded firmware catalog tooling

Shards come from FIRMSTORE_SHARDS (e.g. "fs:/var/data/primary,s3:archive"),
indexes and analytics from REDIS_ADDR.

Usage:
  firmfinder serve [flags]     Run the SQL admin console
  firmfinder seed [flags]      Load a seed catalog (idempotent)
  firmfinder check             Report cross-shard id collisions
  firmfinder search <term>     Run a catalog search
  firmfinder scrape <url>      Extract firmware listings from a vendor page
  firmfinder reindex           Rebuild the Redis indexes from stored documents

Serve flags:
  --addr string   Console listen address (default "127.0.0.1:5433")

Seed flags:
  --file string   Seed JSON file (default "seed.json")`)
}

func openStore(ctx context.Context) (*firmstore.ShardSet, *firmstore.Catalog, *redis.Client) {
	logger, err := firmstore.NewProductionZapLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	shards, rdb, err := firmstore.OpenFromEnv(ctx, logger, firmstore.NewPrometheusMetrics(nil))
	if err != nil {
		log.Fatalf("open shard set: %v", err)
	}
	return shards, firmstore.NewCatalog(shards), rdb
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5433", "console listen address")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shards, catalog, _ := openStore(ctx)
	defer shards.Close()

	if err := shards.Ping(ctx); err != nil {
		log.Fatalf("shard health check: %v", err)
	}

	srv := console.NewServer(shards, catalog, shards.Logger())
	if err := srv.Listen(*addr); err != nil {
		log.Fatalf("console: %v", err)
	}
	defer srv.Close()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("console ready: psql -h %s", *addr)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("console: %v", err)
	}
}

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "seed.json", "seed JSON file")
	fs.Parse(args)

	ctx := context.Background()
	shards, catalog, rdb := openStore(ctx)
	defer shards.Close()

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read seed file: %v", err)
	}

	var brands []firmstore.SeedBrand
	if err := json.Unmarshal(data, &brands); err != nil {
		log.Fatalf("parse seed file: %v", err)
	}

	// Keep concurrent seed runs from racing each other when Redis is around
	if rdb != nil {
		release, err := firmstore.NewDistributedLock(rdb, "firmstore").
			LockWithRetry(ctx, "seed", 5*time.Minute, 5)
		if err != nil {
			log.Fatalf("seed lock: %v", err)
		}
		defer release()
	}

	created, err := firmstore.NewSeeder(catalog).Seed(ctx, brands)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("seeded %d new documents\n", created)
}

func runCheck(args []string) {
	ctx := context.Background()
	shards, _, _ := openStore(ctx)
	defer shards.Close()

	report, err := firmstore.NewConsistencyChecker(shards).CheckCatalog(ctx)
	if err != nil {
		log.Fatalf("check: %v", err)
	}

	for collection, count := range report.DocCounts {
		fmt.Printf("%-10s %d documents\n", collection, count)
	}
	if report.Clean() {
		fmt.Println("no cross-shard id collisions")
		return
	}
	for _, c := range report.Collisions {
		fmt.Printf("collision: %s/%s on %v (reads resolve to %s)\n",
			c.Collection, c.ID, c.Shards, c.Shards[0])
	}
	os.Exit(1)
}

func runSearch(args []string) {
	if len(args) < 1 {
		log.Fatal("usage: firmfinder search <term>")
	}

	ctx := context.Background()
	shards, _, _ := openStore(ctx)
	defer shards.Close()

	results, err := firmstore.NewSearcher(shards).Search(ctx, args[0], 0)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	for _, fw := range results {
		fmt.Printf("%-40s %-12s %s\n", fw.FileName, fw.Version, fw.DownloadURL)
	}
	fmt.Printf("%d results\n", len(results))
}

func runScrape(args []string) {
	if len(args) < 1 {
		log.Fatal("usage: firmfinder scrape <url>")
	}

	ctx := context.Background()
	listings, err := firmstore.NewPageFetcher().FetchListings(ctx, args[0])
	if err != nil {
		log.Fatalf("scrape: %v", err)
	}
	for _, l := range listings {
		fmt.Printf("%-40s %s\n", l.FileName, l.URL)
	}
	fmt.Printf("%d listings\n", len(listings))
}

func runReindex(args []string) {
	ctx := context.Background()
	shards, _, rdb := openStore(ctx)
	defer shards.Close()

	if rdb == nil {
		log.Fatal("reindex requires REDIS_ADDR")
	}

	release, err := firmstore.NewDistributedLock(rdb, "firmstore").
		LockWithRetry(ctx, "reindex", 10*time.Minute, 3)
	if err != nil {
		log.Fatalf("reindex lock: %v", err)
	}
	defer release()

	reports, err := firmstore.RebuildIndexes(ctx, shards)
	if err != nil {
		log.Fatalf("reindex: %v", err)
	}
	for _, r := range reports {
		for collection, n := range r.Indexed {
			fmt.Printf("%s: %s %d documents indexed\n", r.Shard, collection, n)
		}
	}
}
