package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Ethereum: EthereumConfig{
			WebSocketURL: "wss://node.example/ws",
			HTTPURL:      "https://node.example",
			Transport:    TransportEthclient,
		},
		Contract: ContractConfig{
			Address:         "0x1F98431c8aD98523631AE4a59f267346ea31F984",
			OwnerPrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		},
		Keeper: KeeperConfig{
			UpwardThresholdPct:   120,
			DownwardThresholdPct: 80,
			UpwardBufferPct:      120,
			DownwardBufferPct:    110,
			MaxWaitBlocks:        10,
			MaxRetries:           3,
		},
	}
}

func TestConfig_Validate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name: "no_endpoints",
			mutate: func(c *Config) {
				c.Ethereum.WebSocketURL = ""
				c.Ethereum.HTTPURL = ""
			},
			wantSub: "websocket_url",
		},
		{
			name: "bad_transport",
			mutate: func(c *Config) {
				c.Ethereum.Transport = "carrier-pigeon"
			},
			wantSub: "transport",
		},
		{
			name: "rawws_without_ws_url",
			mutate: func(c *Config) {
				c.Ethereum.Transport = TransportRawWS
				c.Ethereum.WebSocketURL = ""
			},
			wantSub: "rawws",
		},
		{
			name: "bad_contract_address",
			mutate: func(c *Config) {
				c.Contract.Address = "not-an-address"
			},
			wantSub: "contract.address",
		},
		{
			name: "missing_private_key",
			mutate: func(c *Config) {
				c.Contract.OwnerPrivateKey = ""
			},
			wantSub: "owner_private_key",
		},
		{
			name: "downward_threshold_at_100",
			mutate: func(c *Config) {
				c.Keeper.DownwardThresholdPct = 100
			},
			wantSub: "downward_threshold_pct",
		},
		{
			name: "upward_threshold_at_100",
			mutate: func(c *Config) {
				c.Keeper.UpwardThresholdPct = 100
			},
			wantSub: "upward_threshold_pct",
		},
		{
			name: "upward_buffer_below_100",
			mutate: func(c *Config) {
				c.Keeper.UpwardBufferPct = 99
			},
			wantSub: "upward_buffer_pct",
		},
		{
			name: "downward_buffer_below_100",
			mutate: func(c *Config) {
				c.Keeper.DownwardBufferPct = 90
			},
			wantSub: "downward_buffer_pct",
		},
		{
			name: "zero_max_wait_blocks",
			mutate: func(c *Config) {
				c.Keeper.MaxWaitBlocks = 0
			},
			wantSub: "max_wait_blocks",
		},
		{
			name: "zero_max_retries",
			mutate: func(c *Config) {
				c.Keeper.MaxRetries = 0
			},
			wantSub: "max_retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Setenv("GK_ETH_WS_URL", "wss://node.example/ws")
	t.Setenv("GK_ETH_HTTP_URL", "https://node.example")
	t.Setenv("GK_CONTRACT_ADDRESS", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	t.Setenv("GK_OWNER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Keeper.UpwardThresholdPct != 120 {
		t.Errorf("UpwardThresholdPct = %d, want 120", cfg.Keeper.UpwardThresholdPct)
	}
	if cfg.Keeper.DownwardThresholdPct != 80 {
		t.Errorf("DownwardThresholdPct = %d, want 80", cfg.Keeper.DownwardThresholdPct)
	}
	if cfg.Keeper.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Keeper.MaxRetries)
	}
	if cfg.Ethereum.Transport != TransportEthclient {
		t.Errorf("Transport = %q, want %q", cfg.Ethereum.Transport, TransportEthclient)
	}
	if cfg.App.Name != "gas-keeper" {
		t.Errorf("App.Name = %q, want gas-keeper", cfg.App.Name)
	}
}
