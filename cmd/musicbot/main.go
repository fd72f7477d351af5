package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Just-Some-Bots/MusicBot-sub004/internal/autoplaylist"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/config"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/handlers"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/mediacache"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/repository"
	"github.com/Just-Some-Bots/MusicBot-sub004/internal/resolver"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)

	res := resolver.NewYtdlpResolver(cfg)
	cache := mediacache.New(cfg, repo, mediacache.NewStreamFetcher(res))
	apl := autoplaylist.NewService(repo)
	bot := handlers.NewBot(cfg, repo, cache, res, apl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
