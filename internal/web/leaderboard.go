package web

import (
	"context"
	"fmt"

	"resellboost/internal/economy"
	"resellboost/internal/model"
)

// Rememberer memoizes values computed from the user snapshot until the next
// write. store.CachedStore implements it.
type Rememberer interface {
	Remember(ctx context.Context, key string, compute func(model.Users) (any, error)) (any, error)
}

// CachedLeaderboards serves rankings from the snapshot cache.
type CachedLeaderboards struct {
	Store Rememberer
}

func (c CachedLeaderboards) Leaderboard(ctx context.Context, field string, n int) ([]economy.Standing, error) {
	key := fmt.Sprintf("leaderboard:%s:%d", field, n)
	v, err := c.Store.Remember(ctx, key, func(users model.Users) (any, error) {
		return economy.Leaderboard(users, field, n), nil
	})
	if err != nil {
		return nil, err
	}
	rows, ok := v.([]economy.Standing)
	if !ok {
		return nil, fmt.Errorf("cached leaderboard has type %T", v)
	}
	return rows, nil
}
