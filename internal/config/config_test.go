package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
server:
  addr: ":8080"
store:
  data_dir: /tmp/agent-mrkt-data
chains:
  - chain_id: 8453
    name: base
    token_messenger_address: "0xTM"
    message_transmitter_address: "0xMT"
    destination_domain: 6
    decimals: 6
    tokens:
      - symbol: USDC
        address: "0xUSDC8453"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesEnvOverridesAndDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	t.Setenv("ADMIN_PKEY", "deadbeef")
	t.Setenv("ADMIN_ADDRESS", "0xADMIN")
	t.Setenv("RPC_URL_8453", "https://base.example/rpc")
	t.Setenv("CHAIN_ID_USDC", "0xOVERRIDDEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Admin.PrivateKeyHex != "deadbeef" || cfg.Admin.Address != "0xADMIN" {
		t.Fatalf("admin config not populated from env: %+v", cfg.Admin)
	}
	if cfg.AttestationAPIURL != DefaultAttestationAPIURL {
		t.Fatalf("expected default attestation URL, got %s", cfg.AttestationAPIURL)
	}
	if len(cfg.Chains) != 1 || cfg.Chains[0].RPCURL != "https://base.example/rpc" {
		t.Fatalf("RPC_URL_8453 override not applied: %+v", cfg.Chains)
	}
	if cfg.Chains[0].Tokens[0].Address != "0xOVERRIDDEN" {
		t.Fatalf("CHAIN_ID_USDC override not applied: %+v", cfg.Chains[0].Tokens)
	}
	if cfg.Timeouts.PublisherTimeout == 0 || cfg.Timeouts.ReceiptTimeout == 0 || cfg.Reconciler.Interval == 0 {
		t.Fatalf("expected defaulted timeouts, got %+v / %+v", cfg.Timeouts, cfg.Reconciler)
	}
}

func TestLoadFailsWithoutAdminKey(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	t.Setenv("ADMIN_PKEY", "")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when ADMIN_PKEY is unset")
	}
}

func TestLoadFailsWithoutRPCURL(t *testing.T) {
	path := writeTempConfig(t, `
server:
  addr: ":8080"
store:
  data_dir: /tmp/agent-mrkt-data
chains:
  - chain_id: 8453
    name: base
`)
	t.Setenv("ADMIN_PKEY", "deadbeef")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error when no RPC URL is configured for a chain")
	}
}
