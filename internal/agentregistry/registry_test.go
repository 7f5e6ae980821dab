package agentregistry

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
)

func TestAgentLookup(t *testing.T) {
	reg := New([]domain.Agent{{ID: "agent-1", PricePerCallUSD: big.NewRat(1, 100)}}, nil)

	got, err := reg.Agent("agent-1")
	if err != nil || got.ID != "agent-1" {
		t.Fatalf("Agent(agent-1): got %+v, err %v", got, err)
	}

	_, err = reg.Agent("missing")
	if apperr.KindOf(err) != apperr.AgentNotFound {
		t.Fatalf("want AgentNotFound, got %v", err)
	}
}

func TestUserByAPIKey(t *testing.T) {
	key := "sk-live-abc123"
	reg := New(nil, []domain.User{newSeedUser("user-1", key, true)})

	got, err := reg.UserByAPIKey(key)
	if err != nil || got.ID != "user-1" {
		t.Fatalf("UserByAPIKey: got %+v, err %v", got, err)
	}

	_, err = reg.UserByAPIKey("wrong-key")
	if apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("want Unauthorized for wrong key, got %v", err)
	}
}

func TestUserByAPIKeyRejectsUnapproved(t *testing.T) {
	key := "sk-live-pending"
	reg := New(nil, []domain.User{newSeedUser("user-2", key, false)})

	_, err := reg.UserByAPIKey(key)
	if apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("want Unauthorized for unapproved user, got %v", err)
	}
}

func newSeedUser(id, apiKey string, approved bool) domain.User {
	return domain.User{ID: id, APIKeyHash: sha256.Sum256([]byte(apiKey)), IsApproved: approved}
}
