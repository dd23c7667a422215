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
	"errors"
	"fmt"
)

// Configuration-time errors. Every failure mode of the primitive is static:
// once New succeeds, Execute over correctly shaped arguments succeeds
// deterministically.
var (
	// ErrUnsupportedDataType is returned for element type combinations the
	// primitive does not handle.
	ErrUnsupportedDataType = errors.New("gnorm: unsupported data type")

	// ErrUnsupportedISA is returned when no usable instruction tier exists.
	ErrUnsupportedISA = errors.New("gnorm: no usable instruction tier")

	// ErrInvalidShape is returned for inconsistent tensor dimensions.
	ErrInvalidShape = errors.New("gnorm: invalid shape")

	// ErrUnsupportedPostOp is returned for post-operation chains the kernel
	// cannot fuse.
	ErrUnsupportedPostOp = errors.New("gnorm: unsupported post-op")

	// ErrMissingArgument is returned by Execute when a buffer the
	// descriptor requires was not supplied.
	ErrMissingArgument = errors.New("gnorm: missing argument")
)

// StatsMode selects where group statistics come from and go to.
type StatsMode int

const (
	// StatsCompute computes mean/variance internally into scratch; the
	// caller never sees them (inference).
	StatsCompute StatsMode = iota

	// StatsExport computes mean/variance and writes them to the caller's
	// Mean/Variance arrays (training forward pass).
	StatsExport

	// StatsProvided consumes caller-supplied mean/variance and computes
	// nothing (inference with externally computed statistics).
	StatsProvided
)

// Desc describes one group-normalization problem. It is immutable after
// New; one kernel set is generated per descriptor.
type Desc struct {
	// N is the batch size, C the channel count, G the group count.
	// C must be divisible by G and C/G must be greater than one.
	N, C, G int

	// D, H, W are the spatial dimensions; zero means absent. The layout is
	// the channels-last family (nc, nwc, nhwc, ndhwc), so one spatial
	// position advances the buffer by C elements.
	D, H, W int

	// SrcType and DstType are the source and destination element types.
	SrcType, DstType DataType

	// UseScale and UseShift enable the per-channel affine transform.
	// Scale and shift vectors are always float32 of length C.
	UseScale, UseShift bool

	// WithSrcScales and WithDstScales enable broadcast quantization
	// scaling of the input and output respectively.
	WithSrcScales, WithDstScales bool

	// Epsilon is added to the variance before the square root.
	Epsilon float32

	// Stats selects the statistics mode.
	Stats StatsMode

	// PostOps is the ordered fused post-operation chain.
	PostOps []PostOp
}

// spatial returns the collapsed spatial extent D*H*W with absent
// dimensions counted as one.
func (d *Desc) spatial() int {
	return max(d.D, 1) * max(d.H, 1) * max(d.W, 1)
}

func (d *Desc) channelsPerGroup() int { return d.C / d.G }

func supportedType(dt DataType) bool {
	switch dt {
	case F32, BF16, F16, S8, U8:
		return true
	}
	return false
}

func (d *Desc) validate() error {
	if d.N < 1 || d.C < 1 || d.G < 1 || d.D < 0 || d.H < 0 || d.W < 0 {
		return fmt.Errorf("%w: N=%d C=%d G=%d D=%d H=%d W=%d",
			ErrInvalidShape, d.N, d.C, d.G, d.D, d.H, d.W)
	}
	if d.C%d.G != 0 {
		return fmt.Errorf("%w: C=%d not divisible by G=%d", ErrInvalidShape, d.C, d.G)
	}
	// Groups of one channel are instance normalization, handled by a
	// different specialization.
	if d.channelsPerGroup() <= 1 {
		return fmt.Errorf("%w: channels per group must be > 1, got %d",
			ErrInvalidShape, d.channelsPerGroup())
	}
	if !supportedType(d.SrcType) {
		return fmt.Errorf("%w: src %v", ErrUnsupportedDataType, d.SrcType)
	}
	if !supportedType(d.DstType) {
		return fmt.Errorf("%w: dst %v", ErrUnsupportedDataType, d.DstType)
	}
	return validatePostOps(d.PostOps)
}
