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
	"github.com/ajroetker/go-highway/hwy"
	"golang.org/x/sys/cpu"
)

// Tier is the instruction tier kernels are specialized for.
type Tier int

const (
	// TierNone means no usable tier; configuration fails.
	TierNone Tier = iota

	// TierVec128 is the portable 128-bit baseline.
	TierVec128

	// TierAVX2 is the 256-bit tier.
	TierAVX2

	// TierAVX512 is the 512-bit tier with hardware lane masking.
	TierAVX512
)

// String returns a human-readable name for the tier.
func (t Tier) String() string {
	switch t {
	case TierVec128:
		return "vec128"
	case TierAVX2:
		return "avx2"
	case TierAVX512:
		return "avx512"
	default:
		return "none"
	}
}

// Width returns the vector register width in bytes.
func (t Tier) Width() int {
	switch t {
	case TierVec128:
		return 16
	case TierAVX2:
		return 32
	case TierAVX512:
		return 64
	default:
		return 0
	}
}

// Lanes returns the number of float32 lanes per vector.
func (t Tier) Lanes() int { return t.Width() / 4 }

// HardwareMasking reports whether the tier has predicated (masked)
// arithmetic. Tiers without it fall back to a zero-and-blend sequence for
// tail lanes.
func (t Tier) HardwareMasking() bool { return t == TierAVX512 }

// computeTier selects the widest usable tier for kernel arithmetic.
// The portable baseline is always usable, so TierNone is returned only
// when feature detection is explicitly disabled and no fallback exists,
// which does not happen in practice; callers still treat it as a hard
// configuration failure.
func computeTier() Tier {
	if cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW && cpu.X86.HasAVX512VL && cpu.X86.HasAVX512DQ {
		return TierAVX512
	}
	if cpu.X86.HasAVX2 {
		return TierAVX2
	}
	return TierVec128
}

// ioTierFor selects the tier the I/O helper is instantiated for. Narrow
// float formats need a conversion path that only the widest tier
// accelerates; on narrower compute tiers they ride the 128-bit emulation
// path instead. Without narrow floats the I/O tier matches the compute
// tier.
func ioTierFor(t Tier, hasF16, hasBF16 bool) Tier {
	if !hasF16 && !hasBF16 {
		return t
	}
	if t >= TierAVX512 {
		return TierAVX512
	}
	return TierVec128
}

// isaCaps is the result of the capability probe for one configuration.
type isaCaps struct {
	compute Tier
	io      Tier

	// lanes is the effective float32 lane count of generated kernels. The
	// vector arithmetic runs through hwy, whose runtime dispatch width
	// bounds the usable vector length, so the tier's lane count is capped
	// by hwy.MaxLanes.
	lanes int

	hwMasking bool
}

// probe maps hardware features and the element types in play to the tiers
// used for kernel generation. Pure selection logic, no side effects.
func probe(src, dst DataType) (isaCaps, error) {
	t := computeTier()
	if t == TierNone {
		return isaCaps{}, ErrUnsupportedISA
	}

	hasF16 := src == F16 || dst == F16
	hasBF16 := src == BF16 || dst == BF16

	caps := isaCaps{
		compute:   t,
		io:        ioTierFor(t, hasF16, hasBF16),
		lanes:     min(t.Lanes(), hwy.MaxLanes[float32]()),
		hwMasking: t.HardwareMasking(),
	}
	if caps.lanes < 1 {
		return isaCaps{}, ErrUnsupportedISA
	}
	return caps, nil
}
