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

import "github.com/ajroetker/go-highway/hwy"

// statKernel computes one group's mean or variance contribution over a
// spatial block. One instance per primitive per statistic; computeVar
// selects between the sum path (mean) and the subtract-square path
// (variance). Instances are immutable after construction and safe to invoke
// concurrently.
//
// Channels-per-group is decomposed into ncBlocks blocks of unrollC*simdW
// lanes, a remainder sub-block, and a masked sub-vector tail. Each unroll
// slot keeps its own vector accumulator across the whole spatial block;
// afterwards the accumulators are folded pairwise and the surviving vector
// is collapsed to one scalar.
type statKernel struct {
	cfg        *kernelConfig
	io         ioHelper
	computeVar bool
}

func newStatKernel(cfg *kernelConfig, computeVar bool) *statKernel {
	return &statKernel{
		cfg:        cfg,
		io:         newIOHelper(cfg.srcType, cfg.ioTier),
		computeVar: computeVar,
	}
}

// computeMean accumulates the sum over block spatial positions of the group
// starting at element offset srcOff, and stores the result to out[outIdx].
// When the configuration divides in-kernel the stored value is the mean;
// otherwise it is the raw sum for the scheduler's fold to finish.
func (k *statKernel) computeMean(src Memory, srcOff int, out []float32, outIdx, block int) {
	sum := k.accumulate(src, srcOff, block, 0)
	out[outIdx] = k.finish(sum)
}

// computeVariance accumulates the sum of squared deviations from mean over
// block spatial positions, storing to out[outIdx] under the same division
// convention as computeMean.
func (k *statKernel) computeVariance(src Memory, srcOff int, mean float32, out []float32, outIdx, block int) {
	sum := k.accumulate(src, srcOff, block, mean)
	out[outIdx] = k.finish(sum)
}

// finish applies the in-kernel division when the single-worker strategy is
// active. The divisor depends only on the configured group size and full
// spatial extent, never on the call's block size, so a zero-extent block
// yields 0.0 rather than NaN.
func (k *statKernel) finish(sum float32) float32 {
	if k.cfg.divideInKernel {
		return sum / float32(k.cfg.cPerG*k.cfg.sp)
	}
	return sum
}

func (k *statKernel) accumulate(src Memory, srcOff, block int, mean float32) float32 {
	cfg := k.cfg

	acc := make([]hwy.Vec[float32], cfg.maxUnroll())
	for i := range acc {
		acc[i] = hwy.Zero[float32]()
	}
	staging := make([]float32, cfg.simdW)

	chanOff := 0
	for b := 0; b < cfg.ncBlocks; b++ {
		k.statBlock(acc, src, srcOff+chanOff, block, unrollC, false, mean, staging)
		chanOff += unrollC * cfg.simdW
	}
	if cfg.unrollCTail > 0 {
		k.statBlock(acc, src, srcOff+chanOff, block, cfg.unrollCTail, false, mean, staging)
		chanOff += cfg.cBlockTail
	}
	if cfg.simdTail > 0 {
		k.statBlock(acc, src, srcOff+chanOff, block, 1, true, mean, staging)
	}

	return hwy.ReduceSum(k.foldUnroll(acc))
}

// foldUnroll reduces the unrolled accumulator set to one vector by pairwise
// addition across the unroll dimension.
func (k *statKernel) foldUnroll(acc []hwy.Vec[float32]) hwy.Vec[float32] {
	switch len(acc) {
	case 4:
		return hwy.Add(hwy.Add(acc[0], acc[1]), hwy.Add(acc[2], acc[3]))
	case 3:
		return hwy.Add(hwy.Add(acc[0], acc[1]), acc[2])
	case 2:
		return hwy.Add(acc[0], acc[1])
	default:
		return acc[0]
	}
}

// statBlock runs the spatial loop for one decomposition level, accumulating
// into the first unroll accumulators. For the variance path the broadcast
// mean is subtracted before squaring; tail chunks use maskedSub so dead
// lanes contribute exactly zero.
func (k *statKernel) statBlock(acc []hwy.Vec[float32], src Memory, base, block, unroll int, tail bool, mean float32, staging []float32) {
	cfg := k.cfg

	count := cfg.simdW
	var mask hwy.Mask[float32]
	if tail {
		count = cfg.simdTail
		mask = hwy.TailMask[float32](count)
	}

	var meanVec hwy.Vec[float32]
	if k.computeVar {
		meanVec = hwy.Set(mean)
	}

	for sp := 0; sp < block; sp++ {
		rowOff := base + sp*cfg.c
		for ur := 0; ur < unroll; ur++ {
			k.io.load(src, rowOff+ur*cfg.simdW, staging, count)
			x := hwy.Load(staging)
			if !k.computeVar {
				acc[ur] = hwy.Add(acc[ur], x)
				continue
			}
			var d hwy.Vec[float32]
			if tail {
				d = k.maskedSub(x, meanVec, mask)
			} else {
				d = hwy.Sub(x, meanVec)
			}
			acc[ur] = hwy.MulAdd(d, d, acc[ur])
		}
	}
}

// maskedSub subtracts the broadcast mean only on live lanes. With hardware
// masking the subtraction itself is predicated; without it the mean's dead
// lanes are zeroed first, which leaves zero in the dead lanes either way
// (the loaded tail lanes are already zero).
func (k *statKernel) maskedSub(x, mean hwy.Vec[float32], m hwy.Mask[float32]) hwy.Vec[float32] {
	if k.cfg.hwMasking {
		return hwy.IfThenElse(m, hwy.Sub(x, mean), x)
	}
	return hwy.Sub(x, hwy.IfThenElseZero(m, mean))
}
