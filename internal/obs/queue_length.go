package obs

import (
	"context"
	"time"

	"github.com/hungson175/hd-tts/internal/queue"
	"go.uber.org/zap"
)

// StartQueueLengthUpdater periodically samples both quality queues and
// updates the QueueLength gauge, grounded on the teacher's
// StartQueueLengthUpdater but reading through the Job Queue Service instead
// of a raw Redis client, so this package never imports go-redis directly.
func StartQueueLengthUpdater(ctx context.Context, svc *queue.Service, log *zap.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, q := range []queue.Quality{queue.QualityHigh, queue.QualityFast} {
					n, err := svc.QueueSize(ctx, q)
					if err != nil {
						log.Debug("queue length poll error", String("quality", string(q)), Err(err))
						continue
					}
					QueueLength.WithLabelValues(string(q)).Set(float64(n))
				}
			}
		}
	}()
}
