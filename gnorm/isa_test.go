// Copyright 2025 go-groupnorm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gnorm

import (
	"testing"

	"github.com/ajroetker/go-highway/hwy"
)

func TestTierProperties(t *testing.T) {
	cases := []struct {
		tier      Tier
		width     int
		lanes     int
		hwMasking bool
	}{
		{TierVec128, 16, 4, false},
		{TierAVX2, 32, 8, false},
		{TierAVX512, 64, 16, true},
		{TierNone, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.tier.String(), func(t *testing.T) {
			if got := tc.tier.Width(); got != tc.width {
				t.Errorf("Width: got %d, want %d", got, tc.width)
			}
			if got := tc.tier.Lanes(); got != tc.lanes {
				t.Errorf("Lanes: got %d, want %d", got, tc.lanes)
			}
			if got := tc.tier.HardwareMasking(); got != tc.hwMasking {
				t.Errorf("HardwareMasking: got %v, want %v", got, tc.hwMasking)
			}
		})
	}
}

func TestIOTierSelection(t *testing.T) {
	cases := []struct {
		name           string
		compute        Tier
		hasF16, hasB16 bool
		want           Tier
	}{
		{"f32 only keeps compute tier", TierAVX2, false, false, TierAVX2},
		{"f32 only on baseline", TierVec128, false, false, TierVec128},
		{"f16 on avx512 stays wide", TierAVX512, true, false, TierAVX512},
		{"f16 on avx2 drops to baseline", TierAVX2, true, false, TierVec128},
		{"bf16 on baseline", TierVec128, false, true, TierVec128},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ioTierFor(tc.compute, tc.hasF16, tc.hasB16); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	caps, err := probe(F32, F32)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if caps.compute == TierNone {
		t.Fatal("no compute tier selected")
	}
	if caps.lanes < 1 {
		t.Fatalf("lanes = %d", caps.lanes)
	}
	if caps.lanes > hwy.MaxLanes[float32]() {
		t.Fatalf("lanes %d exceeds runtime vector width %d",
			caps.lanes, hwy.MaxLanes[float32]())
	}
	if caps.hwMasking != caps.compute.HardwareMasking() {
		t.Errorf("hwMasking %v inconsistent with tier %v", caps.hwMasking, caps.compute)
	}
}
