package domain

import "time"

// SubscriptionStatus is the lifecycle status of a user's subscription to an
// agent.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription tracks a user's relationship to one agent: free-trial budget
// and paid-call accounting. Decrementing a free trial and incrementing paid
// calls are mutually exclusive per call (P6).
type Subscription struct {
	ID                string
	UserID            string
	AgentID           string
	Status            SubscriptionStatus
	FreeTrialsRemaining int64
	FreeTrialsUsed      int64
	TotalPaidCalls      int64
	CreatedAt           time.Time
}

// IsFreeTrial reports whether the next call should be classified as a free
// trial based on remaining budget.
func (s *Subscription) IsFreeTrial() bool {
	return s.FreeTrialsRemaining > 0
}
