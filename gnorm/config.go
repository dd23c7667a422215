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

// unrollC is the accumulator unroll factor of the statistics kernel: each
// channel block covers unrollC vectors, each with its own accumulator.
const unrollC = 4

// DefaultGroupThreshold is the channels-per-group count at and above which
// the scheduler gives whole groups to single workers (and the statistics
// kernel divides in-kernel). Below it, several workers cooperate per group
// and the division happens in the cross-worker fold instead. The value is a
// performance heuristic only (see the WithGroupThreshold option).
const DefaultGroupThreshold = 32

// kernelConfig is the immutable per-primitive kernel configuration. Both
// kernel generators and the scheduler read it; in particular divideInKernel
// is the single place the "who divides the statistic" decision lives, so
// kernel and scheduler can never disagree.
type kernelConfig struct {
	srcType, dstType DataType

	c     int // full channel count: per-position stride in channels-last layout
	cPerG int // channels per group
	sp    int // full spatial extent D*H*W

	simdW int // float32 lanes per vector chunk

	// Channel decomposition of one group:
	// cPerG = ncBlocks*(unrollC*simdW) + cBlockTail + simdTail.
	ncBlocks    int // whole unrolled blocks
	cBlockTail  int // remainder sub-block, a multiple of simdW
	unrollCTail int // cBlockTail / simdW
	simdTail    int // final sub-vector tail, masked

	useScale, useShift           bool
	withSrcScales, withDstScales bool

	eps float32

	// divideInKernel pairs with the scheduler's strategy selection: true
	// iff cPerG is at or above the group threshold, in which case the
	// statistics kernel divides by cPerG*sp itself and the scheduler must
	// not. Exactly one side divides, always.
	divideInKernel bool

	hwMasking bool

	tier, ioTier Tier
}

func newKernelConfig(d *Desc, caps isaCaps, threshold int) kernelConfig {
	cPerG := d.channelsPerGroup()
	simdW := caps.lanes
	cBlock := unrollC * simdW

	simdTail := cPerG % simdW
	cBlockTail := cPerG%cBlock - simdTail

	return kernelConfig{
		srcType:        d.SrcType,
		dstType:        d.DstType,
		c:              d.C,
		cPerG:          cPerG,
		sp:             d.spatial(),
		simdW:          simdW,
		ncBlocks:       cPerG / cBlock,
		cBlockTail:     cBlockTail,
		unrollCTail:    cBlockTail / simdW,
		simdTail:       simdTail,
		useScale:       d.UseScale,
		useShift:       d.UseShift,
		withSrcScales:  d.WithSrcScales,
		withDstScales:  d.WithDstScales,
		eps:            d.Epsilon,
		divideInKernel: cPerG >= threshold,
		hwMasking:      caps.hwMasking,
		tier:           caps.compute,
		ioTier:         caps.io,
	}
}

// maxUnroll is the accumulator count the statistics kernel maintains; the
// widest decomposition level in play determines it.
func (cfg *kernelConfig) maxUnroll() int {
	switch {
	case cfg.ncBlocks > 0:
		return unrollC
	case cfg.unrollCTail > 0:
		return cfg.unrollCTail
	default:
		return 1
	}
}
