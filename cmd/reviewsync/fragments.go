package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/reviewsync/internal/fragment"
	"github.com/dgnsrekt/reviewsync/internal/view"
)

func fragmentsCmd() *cobra.Command {
	var (
		batchKey string
		idsFlag  string
		save     bool
		draft    bool
	)

	cmd := &cobra.Command{
		Use:   "fragments",
		Short: "Load diff comment fragments",
		Long: `Load the rendered fragments for diff comments in one batch request.

Examples:
  reviewsync fragments --key 12 --ids 1,2,3
  reviewsync fragments --key 12 --ids 1,2 --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Server.ReviewRequest == "" {
				return fmt.Errorf("server.review_request is required")
			}

			ids, err := fragment.ParseIDs(idsFlag)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no comment ids given")
			}

			return runFragments(cmd.Context(), batchKey, ids, save, draft)
		},
	}

	cmd.Flags().StringVarP(&batchKey, "key", "k", "", "batch key (file id) the comments belong to")
	cmd.Flags().StringVarP(&idsFlag, "ids", "i", "", "comma separated comment ids")
	cmd.Flags().BoolVar(&save, "save", false, "save the loaded fragments and reload them from memory")
	cmd.Flags().BoolVar(&draft, "draft", false, "treat the batch as a draft (no context expansion)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("ids")

	return cmd
}

func runFragments(ctx context.Context, batchKey string, ids []uint32, save, draft bool) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	defer client.Close()

	doc := view.NewMemoryDocument()
	batchClasses := []string{}
	if draft {
		batchClasses = append(batchClasses, fragment.DraftClass)
	}
	doc.Add(view.NewElement(fragment.DefaultBatchContainerPrefix+batchKey, batchClasses...))

	failed := 0
	queue := fragment.NewQueue(fragment.Options{
		QueueName:      cfg.Fragments.QueueName,
		BasePath:       client.Resolve(cfg.FragmentsPath()),
		LinesOfContext: cfg.Fragments.LinesOfContext,
		TemplateSerial: cfg.Fragments.TemplateSerial,
		OnError: func(key string, ids []uint32, err error) {
			failed += len(ids)
		},
	}, client, doc, nil, logger)

	for _, id := range ids {
		doc.Add(view.NewElement(queue.Renderer().ElementID(id)))
	}

	if err := load(ctx, queue, batchKey, ids); err != nil {
		return err
	}

	if save {
		for _, id := range ids {
			queue.SaveForReuse(id)
		}
		logger.Info("reloading saved fragments", zap.Int("count", len(ids)))
		if err := load(ctx, queue, batchKey, ids); err != nil {
			return err
		}
	}

	for _, id := range ids {
		el, _ := queue.Renderer().Element(id)
		fmt.Fprintf(os.Stdout, "<!-- comment %d -->\n%s\n", id, el.HTML())
	}

	if failed > 0 {
		return fmt.Errorf("%d fragments failed to load", failed)
	}
	return nil
}

// load enqueues ids and blocks until the queue has processed them.
func load(ctx context.Context, queue *fragment.Queue, batchKey string, ids []uint32) error {
	rendered := 0
	for _, id := range ids {
		queue.Enqueue(id, batchKey, func() { rendered++ })
	}

	done := make(chan struct{})
	queue.Flush(ctx, func() { close(done) })

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info("fragments loaded",
		zap.String("batchKey", batchKey),
		zap.Int("requested", len(ids)),
		zap.Int("rendered", rendered),
	)
	return nil
}
