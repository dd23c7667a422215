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
	"fmt"
	"runtime"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// Primitive is a configured group-normalization forward primitive. Kernels
// are generated once at construction; Execute may be called any number of
// times. Calls that compute statistics share the primitive's scratch
// buffers, so run at most one Execute at a time per primitive.
type Primitive struct {
	desc Desc
	cfg  kernelConfig
	caps isaCaps

	kMean *statKernel
	kVar  *statKernel
	kNorm *normKernel
	inj   *postOpsInjector

	pool    *workerpool.Pool
	ownPool bool
	nthr    int

	threshold int

	scratch *scratchpad
}

// Option configures a Primitive at construction.
type Option func(*Primitive)

// WithThreads sets the worker count. Defaults to GOMAXPROCS.
func WithThreads(n int) Option {
	return func(p *Primitive) {
		if n > 0 {
			p.nthr = n
		}
	}
}

// WithPool reuses an existing worker pool instead of creating one. The
// caller keeps ownership; Close will not close it.
func WithPool(pool *workerpool.Pool) Option {
	return func(p *Primitive) { p.pool = pool }
}

// WithGroupThreshold overrides the channels-per-group threshold that
// selects the parallelization strategy. This is a performance knob only;
// both strategies compute the same result up to reduction order.
func WithGroupThreshold(t int) Option {
	return func(p *Primitive) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// New validates the descriptor, probes the instruction tiers, generates the
// kernels and books scratch memory. All failure modes of the primitive
// surface here; a successful New guarantees deterministic Execute success
// for correctly shaped arguments.
func New(desc Desc, opts ...Option) (*Primitive, error) {
	p := &Primitive{
		desc:      desc,
		nthr:      runtime.GOMAXPROCS(0),
		threshold: DefaultGroupThreshold,
	}
	for _, o := range opts {
		o(p)
	}

	if err := desc.validate(); err != nil {
		return nil, err
	}

	caps, err := probe(desc.SrcType, desc.DstType)
	if err != nil {
		return nil, err
	}
	p.caps = caps
	p.cfg = newKernelConfig(&desc, caps, p.threshold)

	inj, err := newPostOpsInjector(desc.PostOps, newIOHelper(desc.DstType, caps.io))
	if err != nil {
		return nil, err
	}
	p.inj = inj

	p.kMean = newStatKernel(&p.cfg, false)
	p.kVar = newStatKernel(&p.cfg, true)
	p.kNorm = newNormKernel(&p.cfg, inj)

	p.scratch = newScratchpad()
	if desc.Stats != StatsProvided {
		p.scratch.book(keyReduction, desc.N*desc.C*p.nthr)
		if desc.Stats == StatsCompute {
			p.scratch.book(keyTmpMean, desc.N*desc.G)
			p.scratch.book(keyTmpVar, desc.N*desc.G)
		}
	}

	if p.pool == nil {
		p.pool = workerpool.New(p.nthr)
		p.ownPool = true
	}
	return p, nil
}

// Close releases the worker pool if the primitive owns it.
func (p *Primitive) Close() {
	if p.ownPool {
		p.pool.Close()
	}
}

// Tier returns the instruction tier kernels were generated for.
func (p *Primitive) Tier() Tier { return p.caps.compute }

// IOTier returns the tier the I/O helper conversion path uses.
func (p *Primitive) IOTier() Tier { return p.caps.io }

// Args carries the per-call buffers of one forward pass. All pointers are
// caller-owned; lifetime is the call.
type Args struct {
	// Src and Dst are the input and output tensors, N*SP*C elements in a
	// channels-last layout, with the element types of the descriptor.
	Src, Dst Memory

	// Scale and Shift are the per-channel affine vectors, length C,
	// required iff the descriptor enables them.
	Scale, Shift []float32

	// Mean and Variance are per-(batch, group) statistic arrays of length
	// N*G, indexed n*G+g. Inputs for StatsProvided, outputs for
	// StatsExport, ignored for StatsCompute.
	Mean, Variance []float32

	// SrcScales and DstScales are broadcast quantization scales; only
	// element 0 is read.
	SrcScales, DstScales []float32

	// PostOpOperands supplies binary post-op operands, indexed by the
	// post-op's position in the descriptor chain.
	PostOpOperands [][]float32
}

func (p *Primitive) checkArgs(args *Args) error {
	d := &p.desc
	need := d.N * d.spatial() * d.C

	if args.Src.Type() != d.SrcType || args.Src.Len() < need {
		return fmt.Errorf("%w: src (%v, %d elements, need %d)",
			ErrMissingArgument, args.Src.Type(), args.Src.Len(), need)
	}
	if args.Dst.Type() != d.DstType || args.Dst.Len() < need {
		return fmt.Errorf("%w: dst (%v, %d elements, need %d)",
			ErrMissingArgument, args.Dst.Type(), args.Dst.Len(), need)
	}
	if d.UseScale && len(args.Scale) < d.C {
		return fmt.Errorf("%w: scale", ErrMissingArgument)
	}
	if d.UseShift && len(args.Shift) < d.C {
		return fmt.Errorf("%w: shift", ErrMissingArgument)
	}
	if d.Stats != StatsCompute {
		if len(args.Mean) < d.N*d.G || len(args.Variance) < d.N*d.G {
			return fmt.Errorf("%w: mean/variance (need %d)", ErrMissingArgument, d.N*d.G)
		}
	}
	if d.WithSrcScales && len(args.SrcScales) < 1 {
		return fmt.Errorf("%w: src scales", ErrMissingArgument)
	}
	if d.WithDstScales && len(args.DstScales) < 1 {
		return fmt.Errorf("%w: dst scales", ErrMissingArgument)
	}
	if p.inj != nil {
		return p.inj.validateOperands(args.PostOpOperands)
	}
	return nil
}
