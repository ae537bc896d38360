package pipeline

import "github.com/uykb/hypejk/internal/domain"

// ShouldForward reports whether a batch carries live fills. The first push
// after subscribing replays history with IsSnapshot set; forwarding it would
// flood the sink with stale alerts. The caller logs the suppressed case.
func ShouldForward(batch domain.SubscriptionBatch) bool {
	return !batch.IsSnapshot
}
