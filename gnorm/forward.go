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

// Execute runs one forward pass. Two strategies distribute the work:
//
//   - Single-worker-group: each worker owns whole (batch, group) pairs and
//     runs them through all kernels with no cross-worker dependencies.
//     Selected for wide groups, where one group is enough work per worker.
//
//   - Multi-worker-group: several workers cooperate on one group, each
//     covering a spatial chunk; partial sums land in a per-slot scratch
//     buffer and a fold collects them. Selected for narrow groups, where
//     spreading a group over workers beats fighting for memory bandwidth.
//
// The strategy choice is tied to the kernel configuration's division
// placement: single-worker kernels emit finished statistics, multi-worker
// kernels emit raw sums and the fold divides. The two strategies agree up
// to floating-point reduction order.
func (p *Primitive) Execute(args *Args) error {
	if err := p.checkArgs(args); err != nil {
		return err
	}

	mean, variance := p.statArrays(args)

	if p.cfg.divideInKernel {
		p.runSingleWorkerGroup(args, mean, variance)
	} else {
		p.runMultiWorkerGroup(args, mean, variance)
	}
	return nil
}

// statArrays returns the mean/variance backing for this call: the caller's
// arrays when statistics cross the API boundary, internal scratch when they
// do not.
func (p *Primitive) statArrays(args *Args) (mean, variance []float32) {
	if p.desc.Stats == StatsCompute {
		return p.scratch.get(keyTmpMean), p.scratch.get(keyTmpVar)
	}
	return args.Mean, args.Variance
}

func (p *Primitive) runSingleWorkerGroup(args *Args, mean, variance []float32) {
	d := &p.desc
	cfg := &p.cfg
	sp := cfg.sp
	calcStats := d.Stats != StatsProvided

	p.pool.ParallelFor(d.N*d.G, func(start, end int) {
		for i := start; i < end; i++ {
			n, g := i/d.G, i%d.G
			dataOff := n*sp*d.C + g*cfg.cPerG

			if calcStats {
				p.kMean.computeMean(args.Src, dataOff, mean, i, sp)
				p.kVar.computeVariance(args.Src, dataOff, mean[i], variance, i, sp)
			}

			p.kNorm.run(&normArgs{
				src:       args.Src,
				srcOff:    dataOff,
				dst:       args.Dst,
				dstOff:    dataOff,
				scale:     groupSlice(args.Scale, g, cfg.cPerG),
				shift:     groupSlice(args.Shift, g, cfg.cPerG),
				mean:      mean[i],
				variance:  variance[i],
				srcScales: args.SrcScales,
				dstScales: args.DstScales,
				operands:  args.PostOpOperands,
				block:     sp,
			})
		}
	})
}

// runMultiWorkerGroup flattens (batch, group, spatial-chunk) into one index
// space of N*G*nthrPerG items. Item i maps to batch i/gPerN, group i%G and
// chunk (i%gPerN)/G; the last chunk absorbs the spatial remainder. During
// the statistics phases item i also names its private scratch slot, so no
// two items ever write the same partial.
func (p *Primitive) runMultiWorkerGroup(args *Args, mean, variance []float32) {
	d := &p.desc
	cfg := &p.cfg
	sp := cfg.sp

	nthrPerG := min(p.nthr, d.G)
	gPerN := d.G * nthrPerG
	spChunk := sp / nthrPerG
	total := d.N * gPerN

	decompose := func(i int) (n, g, t int) {
		return i / gPerN, i % d.G, (i % gPerN) / d.G
	}
	dataOffset := func(n, g, t int) int {
		return n*d.C*sp + g*cfg.cPerG + t*d.C*spChunk
	}
	chunkSize := func(t int) int {
		if t == nthrPerG-1 {
			return sp - t*spChunk
		}
		return spChunk
	}

	if d.Stats != StatsProvided {
		partial := p.scratch.get(keyReduction)

		p.pool.ParallelFor(total, func(start, end int) {
			for i := start; i < end; i++ {
				n, g, t := decompose(i)
				p.kMean.computeMean(args.Src, dataOffset(n, g, t), partial, i, chunkSize(t))
			}
		})
		p.fold(mean, partial, nthrPerG)

		p.pool.ParallelFor(total, func(start, end int) {
			for i := start; i < end; i++ {
				n, g, t := decompose(i)
				p.kVar.computeVariance(args.Src, dataOffset(n, g, t),
					mean[n*d.G+g], partial, i, chunkSize(t))
			}
		})
		p.fold(variance, partial, nthrPerG)
	}

	p.pool.ParallelFor(total, func(start, end int) {
		for i := start; i < end; i++ {
			n, g, t := decompose(i)
			off := dataOffset(n, g, t)
			p.kNorm.run(&normArgs{
				src:       args.Src,
				srcOff:    off,
				dst:       args.Dst,
				dstOff:    off,
				scale:     groupSlice(args.Scale, g, cfg.cPerG),
				shift:     groupSlice(args.Shift, g, cfg.cPerG),
				mean:      mean[n*d.G+g],
				variance:  variance[n*d.G+g],
				srcScales: args.SrcScales,
				dstScales: args.DstScales,
				operands:  args.PostOpOperands,
				block:     chunkSize(t),
			})
		}
	})
}

// fold collapses per-slot partial sums into per-(batch, group) statistics.
// The kernels emitted raw sums under this strategy, so the full-extent
// division happens here, exactly once per statistic.
func (p *Primitive) fold(stat, partial []float32, nthrPerG int) {
	d := &p.desc
	total := d.N * d.G

	for g := 0; g < total; g++ {
		stat[g] = 0
	}
	for n := 0; n < d.N; n++ {
		for t := 0; t < nthrPerG; t++ {
			base := n*nthrPerG*d.G + t*d.G
			for g := 0; g < d.G; g++ {
				stat[n*d.G+g] += partial[base+g]
			}
		}
	}

	div := float32(p.cfg.cPerG * p.cfg.sp)
	for g := 0; g < total; g++ {
		stat[g] /= div
	}
}

// groupSlice narrows a per-channel vector to group g's channel range.
// Affine vectors are optional; nil stays nil.
func groupSlice(v []float32, g, cPerG int) []float32 {
	if v == nil {
		return nil
	}
	return v[g*cPerG : (g+1)*cPerG]
}
