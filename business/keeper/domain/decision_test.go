package domain

import (
	"math/big"
	"testing"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		UpwardTriggerPct:   120,
		DownwardTriggerPct: 80,
		UpwardBufferPct:    120,
		DownwardBufferPct:  110,
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		contract   int64
		network    int64
		thresholds Thresholds
		wantAction Action
		wantTarget int64 // ignored when wantAction is ActionNone
	}{
		{
			name:     "raise_above_upper_bound",
			contract: 1000,
			network:  1100,
			thresholds: Thresholds{
				UpwardTriggerPct:   105,
				DownwardTriggerPct: 80,
				UpwardBufferPct:    110,
				DownwardBufferPct:  110,
			},
			wantAction: ActionRaise,
			wantTarget: 1210, // 1100 * 110 / 100
		},
		{
			name:     "lower_below_lower_bound",
			contract: 1000,
			network:  800,
			thresholds: Thresholds{
				UpwardTriggerPct:   120,
				DownwardTriggerPct: 85,
				UpwardBufferPct:    120,
				DownwardBufferPct:  110,
			},
			wantAction: ActionLower,
			wantTarget: 880, // 800 * 110 / 100
		},
		{
			name:       "inside_band_no_action",
			contract:   1000,
			network:    950,
			thresholds: defaultThresholds(),
			wantAction: ActionNone,
		},
		{
			name:       "exactly_at_upper_bound_no_action",
			contract:   1000,
			network:    1200, // == 1000 * 120 / 100, trigger is strict
			thresholds: defaultThresholds(),
			wantAction: ActionNone,
		},
		{
			name:       "one_wei_above_upper_bound_raises",
			contract:   1000,
			network:    1201,
			thresholds: defaultThresholds(),
			wantAction: ActionRaise,
			wantTarget: 1441, // 1201 * 120 / 100 truncated
		},
		{
			name:       "exactly_at_lower_bound_no_action",
			contract:   1000,
			network:    800, // == 1000 * 80 / 100
			thresholds: defaultThresholds(),
			wantAction: ActionNone,
		},
		{
			name:       "one_wei_below_lower_bound_lowers",
			contract:   1000,
			network:    799,
			thresholds: defaultThresholds(),
			wantAction: ActionLower,
			wantTarget: 878, // 799 * 110 / 100 = 878.9 truncated
		},
		{
			name:       "equal_prices_no_action",
			contract:   1000,
			network:    1000,
			thresholds: defaultThresholds(),
			wantAction: ActionNone,
		},
		{
			name:       "zero_contract_price_always_raises",
			contract:   0,
			network:    100,
			thresholds: defaultThresholds(),
			wantAction: ActionRaise,
			wantTarget: 120,
		},
		{
			name:       "zero_network_price_no_action",
			contract:   1000,
			network:    0,
			thresholds: defaultThresholds(),
			wantAction: ActionNone,
		},
		{
			name:       "both_zero_no_action",
			contract:   0,
			network:    0,
			thresholds: defaultThresholds(),
			wantAction: ActionNone,
		},
		{
			name:       "truncating_division_on_target",
			contract:   100,
			network:    133,
			thresholds: defaultThresholds(),
			wantAction: ActionRaise,
			wantTarget: 159, // 133 * 120 / 100 = 159.6 truncated
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(big.NewInt(tt.contract), big.NewInt(tt.network), tt.thresholds)

			if got.Action != tt.wantAction {
				t.Fatalf("Decide() action = %v, want %v", got.Action, tt.wantAction)
			}
			if tt.wantAction == ActionNone {
				if got.TargetPrice != nil {
					t.Errorf("Decide() target = %v, want nil", got.TargetPrice)
				}
				return
			}
			if got.TargetPrice == nil {
				t.Fatal("Decide() target = nil, want value")
			}
			if got.TargetPrice.Int64() != tt.wantTarget {
				t.Errorf("Decide() target = %v, want %v", got.TargetPrice, tt.wantTarget)
			}
		})
	}
}

func TestDecide_DoesNotMutateInputs(t *testing.T) {
	contract := big.NewInt(1000)
	network := big.NewInt(5000)

	_ = Decide(contract, network, defaultThresholds())

	if contract.Int64() != 1000 {
		t.Errorf("contract price mutated: %v", contract)
	}
	if network.Int64() != 5000 {
		t.Errorf("network price mutated: %v", network)
	}
}

func TestDecide_NilPrices(t *testing.T) {
	th := defaultThresholds()

	if got := Decide(nil, nil, th); got.Action != ActionNone {
		t.Errorf("Decide(nil, nil) = %v, want none", got.Action)
	}
	if got := Decide(big.NewInt(1000), nil, th); got.Action != ActionNone {
		t.Errorf("Decide(c, nil) = %v, want none", got.Action)
	}
	if got := Decide(nil, big.NewInt(1000), th); got.Action != ActionRaise {
		t.Errorf("Decide(nil, n) = %v, want raise", got.Action)
	}
}

func TestDecide_LargeWeiValues(t *testing.T) {
	// 500 gwei contract price, 700 gwei network price
	contract := new(big.Int).Mul(big.NewInt(500), big.NewInt(1_000_000_000))
	network := new(big.Int).Mul(big.NewInt(700), big.NewInt(1_000_000_000))

	got := Decide(contract, network, defaultThresholds())

	if got.Action != ActionRaise {
		t.Fatalf("Decide() action = %v, want raise", got.Action)
	}

	want := new(big.Int).Mul(big.NewInt(840), big.NewInt(1_000_000_000)) // 700 * 120%
	if got.TargetPrice.Cmp(want) != 0 {
		t.Errorf("Decide() target = %v, want %v", got.TargetPrice, want)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	contract := big.NewInt(1000)
	network := big.NewInt(1500)
	th := defaultThresholds()

	first := Decide(contract, network, th)
	for i := 0; i < 100; i++ {
		got := Decide(contract, network, th)
		if got.Action != first.Action || got.TargetPrice.Cmp(first.TargetPrice) != 0 {
			t.Fatalf("Decide() not deterministic: %v vs %v", got, first)
		}
	}
}
