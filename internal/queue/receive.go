package queue

import (
	"context"
	"time"

	"github.com/webclinic017/pgjobq/internal/notify"
)

// Receive blocks until at least one message can be claimed, then returns
// up to max deliveries under the given visibility timeout. The wait is a
// try, wait-with-timeout, retry loop: arrival notifications cut the
// latency, but the store is re-checked at least every engine poll
// interval, so a missed notification only delays delivery, never loses
// it. Cancelling ctx ends the wait without touching any message.
func (q *Queue) Receive(ctx context.Context, max int, visibility time.Duration) ([]*Delivery, error) {
	key := notify.ArrivalKey(q.name)
	for {
		deliveries, err := q.Claim(ctx, max, visibility)
		if err != nil {
			return nil, err
		}
		if len(deliveries) > 0 {
			return deliveries, nil
		}
		q.engine.hub.Wait(ctx, key, q.engine.receivePoll)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}
