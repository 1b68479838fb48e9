package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/api"
	"github.com/dgnsrekt/reviewsync/internal/dispatch"
	"github.com/dgnsrekt/reviewsync/internal/notify"
	"github.com/dgnsrekt/reviewsync/internal/page"
	"github.com/dgnsrekt/reviewsync/internal/update"
	"github.com/dgnsrekt/reviewsync/internal/view"
	"github.com/dgnsrekt/reviewsync/internal/watch"
	"github.com/dgnsrekt/reviewsync/internal/wire"
)

func watchCmd() *cobra.Command {
	var (
		entriesFlag string
		period      time.Duration
		push        bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch page entries for updates",
		Long: `Watch page entries and apply their updates as they arrive.

Entries are given as "type:id,id;type:id". Updates are polled at the
shortest registered period, or received over the push endpoint with --push.

Examples:
  reviewsync watch --entries "review:1,2;status:3"
  reviewsync watch --entries "review:1" --period 2s
  reviewsync watch --entries "review:1" --push`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cfg.Server.ReviewRequest == "" {
				return fmt.Errorf("server.review_request is required")
			}
			if period == 0 {
				period = cfg.Watch.DefaultPeriod
			}
			if cmd.Flags().Changed("push") {
				cfg.Watch.Push = push
			}

			entries, err := parseEntries(entriesFlag)
			if err != nil {
				return err
			}

			return runWatch(ctx, entries, period, concurrency)
		},
	}

	cmd.Flags().StringVarP(&entriesFlag, "entries", "e", "", "entries to watch (type:id,id;type:id)")
	cmd.Flags().DurationVarP(&period, "period", "p", 0, "poll period (default from config)")
	cmd.Flags().BoolVar(&push, "push", false, "receive updates over the push endpoint instead of polling")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max records applied at once (0 = unbounded)")
	_ = cmd.MarkFlagRequired("entries")

	return cmd
}

// parseEntries reads the --entries flag into page entries.
func parseEntries(s string) ([]page.Entry, error) {
	groups := watch.ParseEntriesQuery(s)
	if len(groups) == 0 {
		return nil, fmt.Errorf("no entries in %q", s)
	}

	var entries []page.Entry
	for typeID, ids := range groups {
		for _, id := range ids {
			entries = append(entries, page.NewEntry(id, typeID, time.Time{}, nil))
		}
	}
	return entries, nil
}

func runWatch(ctx context.Context, entries []page.Entry, period time.Duration, concurrency int) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	p := page.New(cfg.Server.ReviewRequest)
	doc := view.NewMemoryDocument()
	for _, e := range entries {
		if err := p.Entries().Add(e); err != nil {
			return fmt.Errorf("adding entry %s: %w", e.ID(), err)
		}
		doc.Add(view.NewElement(view.EntryElementID(e.TypeID(), e.ID())))
	}

	unbind := view.NewBinder(p, doc, logger).BindAll()
	defer unbind()

	logApplied := func(ev page.Event) {
		logger.Info("update applied",
			zap.String("scope", ev.Update.Scope()),
			zap.Time("updated", ev.Update.Timestamp()),
			zap.Int("htmlBytes", len(ev.HTML)),
		)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.TypeID()] {
			continue
		}
		seen[e.TypeID()] = true
		unsubscribe := p.Events().Subscribe(page.Topic(page.PhaseApplied, e.TypeID()), logApplied)
		defer unsubscribe()
	}

	dispatcher := dispatch.New(p, logger)
	processor := update.NewProcessor(wire.DefaultMaterializer, concurrency, logger)
	poller := watch.NewPoller(client, client.Resolve(cfg.UpdatesPath()), processor, dispatcher.ApplyFunc(), logger)

	if cfg.Watch.Push {
		return runPush(ctx, client, client.Resolve(cfg.PushPath()), entries, poller)
	}

	manager := watch.NewManager(poller.Poll, nil, logger)
	for _, e := range entries {
		if err := manager.Watch(e, period); err != nil {
			return fmt.Errorf("watching %s: %w", e.ID(), err)
		}
	}

	notifyCfg := notify.LoadConfig()
	if err := notifyCfg.Validate(); err != nil {
		return fmt.Errorf("notification config: %w", err)
	}
	alerter := notify.NewAlerter(notify.New(notifyCfg, logger), notifyCfg.FailureThreshold,
		cfg.Server.ReviewRequest, manager.Query(), logger)

	manager.OnPolled(func(err error) {
		alerter.Observe(ctx, err)
	})

	logger.Info("watching entries",
		zap.String("reviewRequest", cfg.Server.ReviewRequest),
		zap.String("entries", manager.Query()),
		zap.Duration("period", manager.Period()),
	)

	manager.Start(ctx)
	<-ctx.Done()
	manager.Stop()

	logger.Info("watch stopped")
	return nil
}

func runPush(ctx context.Context, client *api.HTTPClient, pushURL string, entries []page.Entry, poller *watch.Poller) error {
	u := pushURL + "?" + url.Values{"entries": {watch.EntriesQuery(entries)}}.Encode()
	if cfg.Watch.Compression {
		u += "&compression=zstd"
	}

	logger.Info("subscribing to pushed updates",
		zap.String("reviewRequest", cfg.Server.ReviewRequest),
		zap.String("url", u),
	)

	err := client.Subscribe(ctx, u, func(payload []byte) {
		if _, err := poller.Handle(ctx, payload, "push"); err != nil {
			logger.Warn("pushed payload rejected", zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("push subscription: %w", err)
	}

	logger.Info("watch stopped")
	return nil
}
