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

// Package gnorm implements a CPU group-normalization forward primitive.
//
// Given a tensor of shape [N, C, spatial...] in a channels-last layout, the
// primitive splits the C channels into G groups of C/G channels, normalizes
// each group by the mean and variance computed over its channels and the full
// spatial extent, then applies an optional affine transform (per-channel
// scale and shift), optional fused post-operations, and optional quantization
// scaling, converting the result to the destination element type with
// saturation.
//
// Kernels are specialized once per configuration at construction time and
// dispatched over the best available vector tier. Two parallelization
// strategies are used at execution time depending on the channels-per-group
// count: with wide groups each worker owns whole groups; with narrow groups
// several workers cooperate on one group's spatial extent and partial
// statistics are folded across workers.
//
// Basic usage:
//
//	desc := gnorm.Desc{
//	    N: 2, C: 64, G: 8, H: 14, W: 14,
//	    SrcType: gnorm.F32, DstType: gnorm.F32,
//	    UseScale: true, UseShift: true,
//	    Epsilon: 1e-5,
//	}
//	p, err := gnorm.New(desc)
//	if err != nil { ... }
//	defer p.Close()
//
//	err = p.Execute(&gnorm.Args{
//	    Src:   gnorm.F32Memory(src),
//	    Dst:   gnorm.F32Memory(dst),
//	    Scale: scale, Shift: shift,
//	})
//
// Supported element types are float32, bfloat16, float16, int8 and uint8 for
// both source and destination. Statistics are always computed and stored in
// float32. Groups of size one are not supported by this primitive (that
// degenerate case is instance normalization, a different specialization).
package gnorm
