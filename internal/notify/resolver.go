package notify

import (
	"context"
	"fmt"

	"traindeck/internal/types"
)

// DeviceReader is the device lookup the resolver needs. Implemented by
// db.DeviceRepository. Only active devices are ever returned.
type DeviceReader interface {
	ListActiveByAudience(ctx context.Context, departmentIDs, levels []string) ([]types.PushTarget, error)
	ListActiveByUsers(ctx context.Context, userIDs []string) ([]types.PushTarget, error)
}

// RecipientResolver maps an audience description to concrete push targets.
// Targets may repeat a token across device rows; deduplication is the push
// sender's job, not the resolver's.
type RecipientResolver struct {
	devices DeviceReader
	logger  types.Logger
}

// NewRecipientResolver creates a RecipientResolver.
func NewRecipientResolver(devices DeviceReader, logger types.Logger) *RecipientResolver {
	return &RecipientResolver{devices: devices, logger: logger}
}

// ResolveAudience returns the push targets of users matching the non-empty
// filters, ANDed when both are present. Empty filters on both axes resolve
// to nobody: an unfiltered event is not a broadcast.
func (r *RecipientResolver) ResolveAudience(ctx context.Context, departmentIDs, levels []string) ([]types.PushTarget, error) {
	if len(departmentIDs) == 0 && len(levels) == 0 {
		r.logger.Info("audience has no filters, resolving to no recipients")
		return nil, nil
	}

	targets, err := r.devices.ListActiveByAudience(ctx, departmentIDs, levels)
	if err != nil {
		return nil, fmt.Errorf("resolving audience: %w", err)
	}
	return targets, nil
}

// ResolveUsers returns the push targets of the explicitly listed users.
func (r *RecipientResolver) ResolveUsers(ctx context.Context, userIDs []string) ([]types.PushTarget, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	targets, err := r.devices.ListActiveByUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolving users: %w", err)
	}
	return targets, nil
}
