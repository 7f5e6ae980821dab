package jsonstore

import (
	"context"

	"github.com/bitsandtea/agent-mrkt/internal/domain"
)

type callLogRecord struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	AgentID           string `json:"agent_id"`
	RequestTimestamp  int64  `json:"request_timestamp"`
	ResponseTimestamp int64  `json:"response_timestamp"`
	HTTPStatus        int    `json:"http_status"`
	ResponseTimeMS    int64  `json:"response_time_ms"`
	IsFreeTrial       bool   `json:"is_free_trial"`
	ChargedAmountUSD  string `json:"charged_amount_usd"`
	PaymentID         string `json:"payment_id"`
}

func callLogToRecord(l *domain.APICallLog) callLogRecord {
	r := callLogRecord{
		ID:               l.ID,
		UserID:           l.UserID,
		AgentID:          l.AgentID,
		RequestTimestamp: l.RequestTimestamp.Unix(),
		HTTPStatus:       l.HTTPStatus,
		ResponseTimeMS:   l.ResponseTimeMS,
		IsFreeTrial:      l.IsFreeTrial,
		ChargedAmountUSD: bigRatString(l.ChargedAmountUSD),
		PaymentID:        l.PaymentID,
	}
	if !l.ResponseTimestamp.IsZero() {
		r.ResponseTimestamp = l.ResponseTimestamp.Unix()
	}
	return r
}

// LogAPICall is append-only: every call, regardless of outcome, gets a row
// (§4.9), so this never needs a read-modify-write and can't conflict with
// the payment/permit mutations happening on the same request.
func (s *Store) LogAPICall(ctx context.Context, l *domain.APICallLog) error {
	return s.callLogs.put(l.ID, callLogToRecord(l))
}
