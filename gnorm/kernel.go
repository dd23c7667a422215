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
	"math"

	"github.com/ajroetker/go-highway/hwy"
)

// normKernel computes the normalized (and post-processed) output for one
// group over a spatial block. One instance per primitive; immutable after
// construction and safe to invoke concurrently.
type normKernel struct {
	cfg   *kernelConfig
	srcIO ioHelper
	dstIO ioHelper
	inj   *postOpsInjector
}

func newNormKernel(cfg *kernelConfig, inj *postOpsInjector) *normKernel {
	return &normKernel{
		cfg:   cfg,
		srcIO: newIOHelper(cfg.srcType, cfg.ioTier),
		dstIO: newIOHelper(cfg.dstType, cfg.ioTier),
		inj:   inj,
	}
}

// normArgs is the per-call argument block of the normalization kernel.
// Offsets address the first channel of the group at the first spatial
// position of the block; scale and shift are sliced to the group's channel
// range by the scheduler. mean and variance are the group's single
// statistic pair, shared by every channel and spatial position.
type normArgs struct {
	src    Memory
	srcOff int
	dst    Memory
	dstOff int

	scale, shift []float32

	mean, variance float32

	srcScales, dstScales []float32

	operands [][]float32

	block int
}

func (k *normKernel) run(a *normArgs) {
	cfg := k.cfg

	staging := make([]float32, cfg.simdW)
	out := make([]float32, cfg.simdW)

	meanVec := hwy.Set(a.mean)

	// Statistics are always float32, whatever the source and destination
	// types; one sqrt and one divide per invocation.
	invStd := float32(1.0 / math.Sqrt(float64(a.variance+cfg.eps)))
	invVec := hwy.Set(invStd)

	full := cfg.cPerG / cfg.simdW
	for sp := 0; sp < a.block; sp++ {
		srcRow := a.srcOff + sp*cfg.c
		dstRow := a.dstOff + sp*cfg.c
		for i := 0; i < full; i++ {
			k.body(a, srcRow, dstRow, i*cfg.simdW, cfg.simdW, false, meanVec, invVec, staging, out)
		}
		if cfg.simdTail > 0 {
			k.body(a, srcRow, dstRow, full*cfg.simdW, cfg.simdTail, true, meanVec, invVec, staging, out)
		}
	}
}

// body processes one vector chunk of channels at one spatial position.
// chanOff is the chunk's offset within the group; count < simdW marks the
// masked tail chunk.
func (k *normKernel) body(a *normArgs, srcRow, dstRow, chanOff, count int, tail bool, meanVec, invVec hwy.Vec[float32], staging, out []float32) {
	cfg := k.cfg

	var mask hwy.Mask[float32]
	if tail {
		mask = hwy.TailMask[float32](count)
	}

	k.srcIO.load(a.src, srcRow+chanOff, staging, count)
	y := hwy.Load(staging)

	y = hwy.Sub(y, meanVec)
	y = hwy.Mul(y, invVec)

	switch {
	case cfg.useScale && cfg.useShift:
		// Fused y = y*scale + shift keeps a single rounding step.
		sc := k.loadAffine(a.scale, chanOff, count, tail, mask)
		sh := k.loadAffine(a.shift, chanOff, count, tail, mask)
		y = hwy.MulAdd(y, sc, sh)
	case cfg.useScale:
		y = hwy.Mul(y, k.loadAffine(a.scale, chanOff, count, tail, mask))
	case cfg.useShift:
		y = hwy.Add(y, k.loadAffine(a.shift, chanOff, count, tail, mask))
	}

	if cfg.withSrcScales {
		y = hwy.Mul(y, hwy.Set(a.srcScales[0]))
	}
	if k.inj != nil {
		y = k.inj.compute(y, a.dst, dstRow+chanOff, count, a.operands)
	}
	if cfg.withDstScales {
		y = hwy.Mul(y, hwy.Set(a.dstScales[0]))
	}

	hwy.Store(y, out)
	k.dstIO.store(out, a.dst, dstRow+chanOff, count)
}

func (k *normKernel) loadAffine(v []float32, chanOff, count int, tail bool, mask hwy.Mask[float32]) hwy.Vec[float32] {
	if tail {
		return hwy.MaskLoad(mask, v[chanOff:])
	}
	return hwy.Load(v[chanOff : chanOff+count])
}
