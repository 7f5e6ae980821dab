package jsonstore

import (
	"context"
	"time"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"github.com/bitsandtea/agent-mrkt/internal/store"
)

type subscriptionRecord struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	AgentID             string `json:"agent_id"`
	Status              string `json:"status"`
	FreeTrialsRemaining int64  `json:"free_trials_remaining"`
	FreeTrialsUsed      int64  `json:"free_trials_used"`
	TotalPaidCalls      int64  `json:"total_paid_calls"`
	CreatedAt           int64  `json:"created_at"`
}

func subscriptionToRecord(s *domain.Subscription) subscriptionRecord {
	return subscriptionRecord{
		ID:                  s.ID,
		UserID:              s.UserID,
		AgentID:             s.AgentID,
		Status:              string(s.Status),
		FreeTrialsRemaining: s.FreeTrialsRemaining,
		FreeTrialsUsed:      s.FreeTrialsUsed,
		TotalPaidCalls:      s.TotalPaidCalls,
		CreatedAt:           s.CreatedAt.Unix(),
	}
}

func recordToSubscription(r subscriptionRecord) *domain.Subscription {
	return &domain.Subscription{
		ID:                  r.ID,
		UserID:              r.UserID,
		AgentID:             r.AgentID,
		Status:              domain.SubscriptionStatus(r.Status),
		FreeTrialsRemaining: r.FreeTrialsRemaining,
		FreeTrialsUsed:      r.FreeTrialsUsed,
		TotalPaidCalls:      r.TotalPaidCalls,
		CreatedAt:           time.Unix(r.CreatedAt, 0).UTC(),
	}
}

// PutSubscription is not part of the store.Store contract (the interface
// only needs lookup + usage-update) but is exposed for seeding/test setup.
func (s *Store) PutSubscription(ctx context.Context, sub *domain.Subscription) error {
	return s.subscriptions.put(sub.ID, subscriptionToRecord(sub))
}

// GetSubscription looks up a user's subscription to an agent by scanning
// the (typically small, per-user) subscription set; there is one row per
// (user, agent) pair so this is the natural key even though the table is
// stored by its own ID.
func (s *Store) GetSubscription(ctx context.Context, userID, agentID string) (*domain.Subscription, error) {
	for _, r := range s.subscriptions.all() {
		if r.UserID == userID && r.AgentID == agentID {
			return recordToSubscription(r), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateSubscriptionUsage(ctx context.Context, id string, wasFreeTrial bool) error {
	return s.subscriptions.mutate(id, func(r subscriptionRecord, ok bool) (subscriptionRecord, error) {
		if !ok {
			return r, store.ErrNotFound
		}
		if wasFreeTrial {
			if r.FreeTrialsRemaining > 0 {
				r.FreeTrialsRemaining--
			}
			r.FreeTrialsUsed++
		} else {
			r.TotalPaidCalls++
		}
		return r, nil
	})
}
