// Package agentregistry is the static directory of marketplace agents and
// approved users, the same immutable-table shape chainregistry uses for
// chains and tokens. The router never mutates an Agent or a User; both are
// provisioned out of band (by whatever admin tooling approves publishers and
// issues API keys) and loaded once at startup.
package agentregistry

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/big"
	"os"

	"github.com/bitsandtea/agent-mrkt/internal/apperr"
	"github.com/bitsandtea/agent-mrkt/internal/domain"
	"gopkg.in/yaml.v3"
)

// Registry is the immutable, process-wide agent/user directory.
type Registry struct {
	agents      map[string]domain.Agent
	usersByHash map[[32]byte]domain.User
}

// New builds a Registry from explicit agent and user tables.
func New(agents []domain.Agent, users []domain.User) *Registry {
	agentMap := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		agentMap[a.ID] = a
	}
	userMap := make(map[[32]byte]domain.User, len(users))
	for _, u := range users {
		userMap[u.APIKeyHash] = u
	}
	return &Registry{agents: agentMap, usersByHash: userMap}
}

// Agent looks up an agent by id.
func (r *Registry) Agent(id string) (*domain.Agent, error) {
	a, ok := r.agents[id]
	if !ok {
		return nil, apperr.New(apperr.AgentNotFound, "unknown agent "+id)
	}
	return &a, nil
}

// UserByAPIKey hashes key and looks up the matching approved user. The
// comparison against stored hashes is constant-time; key never touches
// storage or logs in plaintext.
func (r *Registry) UserByAPIKey(key string) (*domain.User, error) {
	hash := sha256.Sum256([]byte(key))
	for stored, u := range r.usersByHash {
		if subtle.ConstantTimeCompare(stored[:], hash[:]) == 1 {
			if !u.IsApproved {
				return nil, apperr.New(apperr.Unauthorized, "user not approved")
			}
			user := u
			return &user, nil
		}
	}
	return nil, apperr.New(apperr.Unauthorized, "unknown api key")
}

// --- YAML seed file ---------------------------------------------------------

type seedFile struct {
	Agents []seedAgent `yaml:"agents"`
	Users  []seedUser  `yaml:"users"`
}

type seedAgent struct {
	ID                     string `yaml:"id"`
	PricePerCallUSD        string `yaml:"price_per_call_usd"`
	PayoutToken            string `yaml:"payout_token"`
	PayoutChainID          uint64 `yaml:"payout_chain_id"`
	PublisherWalletAddress string `yaml:"publisher_wallet_address"`
	APIEndpoint            string `yaml:"api_endpoint"`
	PublisherAPIKey        string `yaml:"publisher_api_key"`
	FreeTrialTries         int64  `yaml:"free_trial_tries"`
}

type seedUser struct {
	ID         string `yaml:"id"`
	APIKey     string `yaml:"api_key"`
	IsApproved bool   `yaml:"is_approved"`
}

// LoadFile reads a YAML seed of agents and approved users. API keys in the
// file are plaintext (this is provisioning-time data, not a request path);
// only their SHA-256 hash is kept in the resulting Registry.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent registry seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse agent registry seed: %w", err)
	}

	agents := make([]domain.Agent, 0, len(seed.Agents))
	for _, a := range seed.Agents {
		price, ok := new(big.Rat).SetString(a.PricePerCallUSD)
		if !ok {
			return nil, fmt.Errorf("agent %s: invalid price_per_call_usd %q", a.ID, a.PricePerCallUSD)
		}
		agents = append(agents, domain.Agent{
			ID:              a.ID,
			PricePerCallUSD: price,
			PaymentPreferences: domain.PaymentPreferences{
				PayoutToken:   a.PayoutToken,
				PayoutChainID: a.PayoutChainID,
			},
			PublisherWalletAddress: a.PublisherWalletAddress,
			APIEndpoint:            a.APIEndpoint,
			PublisherAPIKey:        a.PublisherAPIKey,
			FreeTrialTries:         a.FreeTrialTries,
		})
	}

	users := make([]domain.User, 0, len(seed.Users))
	for _, u := range seed.Users {
		users = append(users, domain.User{
			ID:         u.ID,
			APIKeyHash: sha256.Sum256([]byte(u.APIKey)),
			IsApproved: u.IsApproved,
		})
	}

	return New(agents, users), nil
}
