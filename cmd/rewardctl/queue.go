package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-rewards/internal/app"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/queue"
	"github.com/stemsi/exstem-rewards/internal/worker"
)

// listQueue is a job queue backed by an inspectable list. Only the Redis
// backend provides one.
type listQueue interface {
	Name() string
	Len(ctx context.Context) (int64, error)
	DeadLen(ctx context.Context) (int64, error)
	ProcessOne(ctx context.Context, h queue.Handler) (bool, error)
}

// QueueStat is the depth of one queue and its dead-letter list.
type QueueStat struct {
	Queue   string `json:"queue"`
	Waiting int64  `json:"waiting"`
	Dead    int64  `json:"dead"`
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the Redis job queues",
	}
	cmd.AddCommand(newQueueStatsCmd())
	cmd.AddCommand(newQueueDrainOneCmd())
	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show waiting and dead-lettered job counts",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App) (any, error) {
			return queueStats(ctx, a.NotificationQueue, a.WinnerListQueue)
		}),
	}
}

func newQueueDrainOneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain-one",
		Short: "Deliver at most one waiting result notification",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App) (any, error) {
			w := worker.NewNotificationWorker(a.NotificationQueue, a.Notifications, a.Log)
			handled, err := drainOne(ctx, a.NotificationQueue, w.Handle)
			return map[string]bool{"handled": handled}, err
		}),
	}
}

func asListQueue(q app.JobQueue) (listQueue, error) {
	lq, ok := q.(listQueue)
	if !ok {
		return nil, fmt.Errorf("queue commands need QUEUE_BACKEND=%s", config.QueueBackendRedis)
	}
	return lq, nil
}

func queueStats(ctx context.Context, queues ...app.JobQueue) ([]QueueStat, error) {
	stats := make([]QueueStat, 0, len(queues))
	for _, q := range queues {
		lq, err := asListQueue(q)
		if err != nil {
			return nil, err
		}

		waiting, err := lq.Len(ctx)
		if err != nil {
			return nil, fmt.Errorf("length of %s: %w", lq.Name(), err)
		}
		dead, err := lq.DeadLen(ctx)
		if err != nil {
			return nil, fmt.Errorf("dead-letter length of %s: %w", lq.Name(), err)
		}
		stats = append(stats, QueueStat{Queue: lq.Name(), Waiting: waiting, Dead: dead})
	}
	return stats, nil
}

func drainOne(ctx context.Context, q app.JobQueue, h queue.Handler) (bool, error) {
	lq, err := asListQueue(q)
	if err != nil {
		return false, err
	}
	return lq.ProcessOne(ctx, h)
}
