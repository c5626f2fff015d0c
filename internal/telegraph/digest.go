package telegraph

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/rapidaid/internal/models"
)

// PendingSource lists pending requests older than a cutoff.
type PendingSource interface {
	ListStalePending(ctx context.Context, olderThan time.Time) ([]models.SOSRequest, error)
}

// BuildDigest returns the digest of requests pending longer than
// staleAfter, or nil when there are none.
func BuildDigest(ctx context.Context, src PendingSource, now time.Time, staleAfter time.Duration) (*OutboundMessage, error) {
	recs, err := src.ListStalePending(ctx, now.Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("telegraph: digest: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	msg := FormatDigest(recs, now, staleAfter)
	return &msg, nil
}
