package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ItalyPaleAle/rss-notifier/bot"
	"github.com/ItalyPaleAle/rss-notifier/conf"
	"github.com/ItalyPaleAle/rss-notifier/db"
	"github.com/ItalyPaleAle/rss-notifier/feeds"
	"github.com/ItalyPaleAle/rss-notifier/metrics"
	"github.com/ItalyPaleAle/rss-notifier/migrations"
	"github.com/ItalyPaleAle/rss-notifier/notify"
)

func main() {
	err := run()
	if err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load config
	cfg, err := conf.LoadConfig()
	if err != nil {
		return err
	}

	// Stop on SIGINT and SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to DB and migrate to the latest version
	dbx, err := db.Connect(ctx, db.Options{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.DBDSN,
	})
	if err != nil {
		return err
	}
	defer dbx.Close()
	err = migrations.Migrate(dbx)
	if err != nil {
		return err
	}
	store := db.NewStore(dbx)

	// Feed client
	client, err := feeds.NewClient(cfg.FetchTimeout, cfg.ValidatorCacheSize)
	if err != nil {
		return fmt.Errorf("error creating the feed client: %w", err)
	}

	// The bot sends the notifications, but it needs the feeds object for its commands
	service := &lazyFeeds{}
	b, err := bot.New(service, bot.Options{
		AuthToken:    cfg.TelegramAuthToken,
		APIDebug:     cfg.TelegramAPIDebug,
		AllowedUsers: cfg.AllowedUsers,
		Timeout:      cfg.DeliveryTimeout,
	})
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(b, cfg.DeliveryTimeout, cfg.DeliveryRate)

	opts := feeds.Options{
		ParallelFetch:    cfg.ParallelFetch,
		FetchTimeout:     cfg.FetchTimeout,
		InsecureTLSHosts: cfg.InsecureTLSHosts,
	}
	if cfg.FetchMetadata {
		opts.Metadata = client
	}
	service.Feeds = feeds.New(store, client, dispatcher, opts)

	g, gCtx := errgroup.WithContext(ctx)

	// Start the bot - this is a blocking call
	g.Go(func() error {
		return b.Start(gCtx)
	})

	// Periodically check feeds
	g.Go(func() error {
		s := &feeds.Scheduler{
			Interval: cfg.FeedUpdateInterval,
			Delay:    cfg.FeedUpdateDelay,
			Task:     service.QueueUpdate,
		}
		return s.Run(gCtx)
	})

	// Metrics server, if enabled
	if cfg.MetricsListen != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Infof("Metrics server listening on %s", cfg.MetricsListen)
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("error starting the metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			// Block from shutting down until the group is canceled
			<-gCtx.Done()

			downCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := srv.Shutdown(downCtx)
			if err != nil {
				log.Errorf("Error shutting down the metrics server: %s", err)
			}
			return nil
		})
	}

	err = g.Wait()

	// Passes started in background must complete before the database is closed
	service.Wait()
	if err != nil {
		return fmt.Errorf("error running: %w", err)
	}
	log.Info("Shut down")
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// lazyFeeds breaks the dependency cycle between the bot, which delivers notifications, and the feeds object, which serves the bot's commands
type lazyFeeds struct {
	*feeds.Feeds
}
