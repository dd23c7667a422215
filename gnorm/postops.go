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

	"github.com/ajroetker/go-highway/hwy"
)

// EltwiseAlg identifies a fused elementwise operation.
type EltwiseAlg int

const (
	// EltwiseReLU computes x if x > 0, else alpha*x.
	EltwiseReLU EltwiseAlg = iota

	// EltwiseLinear computes alpha*x + beta.
	EltwiseLinear

	// EltwiseClip clamps x to [alpha, beta].
	EltwiseClip
)

// BinaryAlg identifies a fused binary operation. Only the scalar broadcast
// strategy is supported: the right-hand operand is a single value applied to
// every lane. Per-channel broadcast is not supported because a group spans
// multiple channels without a uniform per-channel offset scheme compatible
// with the group-at-a-time chunk layout.
type BinaryAlg int

const (
	BinaryAdd BinaryAlg = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMax
	BinaryMin
)

type postOpKind int

const (
	postOpEltwise postOpKind = iota
	postOpBinary
	postOpSum
)

// PostOp is one entry of the fused post-operation chain, applied in order
// after normalization and before the destination store.
type PostOp struct {
	kind postOpKind

	elt         EltwiseAlg
	alpha, beta float32

	bin BinaryAlg

	sumScale float32
}

// Eltwise returns a fused elementwise post-op. alpha and beta parameterize
// the algorithm (see EltwiseAlg).
func Eltwise(alg EltwiseAlg, alpha, beta float32) PostOp {
	return PostOp{kind: postOpEltwise, elt: alg, alpha: alpha, beta: beta}
}

// Binary returns a fused binary post-op with a broadcast scalar operand.
// The operand value is supplied per call through Args.PostOpOperands at the
// post-op's position in the chain.
func Binary(alg BinaryAlg) PostOp {
	return PostOp{kind: postOpBinary, bin: alg}
}

// Sum returns a fused accumulation post-op: y += scale * dst_current.
func Sum(scale float32) PostOp {
	return PostOp{kind: postOpSum, sumScale: scale}
}

// IsBinary reports whether the entry consumes a per-call operand.
func (op PostOp) IsBinary() bool { return op.kind == postOpBinary }

func validatePostOps(ops []PostOp) error {
	for i, op := range ops {
		switch op.kind {
		case postOpEltwise:
			switch op.elt {
			case EltwiseReLU, EltwiseLinear, EltwiseClip:
			default:
				return fmt.Errorf("%w: eltwise alg %d at %d", ErrUnsupportedPostOp, op.elt, i)
			}
		case postOpBinary:
			switch op.bin {
			case BinaryAdd, BinarySub, BinaryMul, BinaryDiv, BinaryMax, BinaryMin:
			default:
				return fmt.Errorf("%w: binary alg %d at %d", ErrUnsupportedPostOp, op.bin, i)
			}
		case postOpSum:
		default:
			return fmt.Errorf("%w: kind %d at %d", ErrUnsupportedPostOp, op.kind, i)
		}
	}
	return nil
}

// postOpsInjector applies the fused chain to a vector of normalized values.
// It is constructed once per kernel configuration; per-call state (binary
// operand table, destination addressing) arrives through compute.
type postOpsInjector struct {
	ops   []PostOp
	dstIO ioHelper
}

func newPostOpsInjector(ops []PostOp, dstIO ioHelper) (*postOpsInjector, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if err := validatePostOps(ops); err != nil {
		return nil, err
	}
	return &postOpsInjector{ops: ops, dstIO: dstIO}, nil
}

// validateOperands checks that every binary entry has a per-call operand at
// its chain position.
func (inj *postOpsInjector) validateOperands(operands [][]float32) error {
	for i, op := range inj.ops {
		if op.IsBinary() && (i >= len(operands) || len(operands[i]) == 0) {
			return fmt.Errorf("%w: operand for binary post-op %d", ErrMissingArgument, i)
		}
	}
	return nil
}

// compute applies the chain to v. dst/off/count address the destination
// chunk the vector is about to be stored to (consumed by Sum entries and by
// binary destination-offset addressing). operands is the per-call binary
// operand table, indexed by position in the chain.
func (inj *postOpsInjector) compute(v hwy.Vec[float32], dst Memory, off, count int, operands [][]float32) hwy.Vec[float32] {
	for i, op := range inj.ops {
		switch op.kind {
		case postOpEltwise:
			v = applyEltwise(v, op)
		case postOpBinary:
			// Scalar broadcast strategy: one value per call.
			s := hwy.Set(operands[i][0])
			switch op.bin {
			case BinaryAdd:
				v = hwy.Add(v, s)
			case BinarySub:
				v = hwy.Sub(v, s)
			case BinaryMul:
				v = hwy.Mul(v, s)
			case BinaryDiv:
				v = hwy.Div(v, s)
			case BinaryMax:
				v = hwy.Max(v, s)
			case BinaryMin:
				v = hwy.Min(v, s)
			}
		case postOpSum:
			cur := make([]float32, count)
			inj.dstIO.load(dst, off, cur, count)
			v = hwy.MulAdd(hwy.Load(cur), hwy.Set(op.sumScale), v)
		}
	}
	return v
}

func applyEltwise(v hwy.Vec[float32], op PostOp) hwy.Vec[float32] {
	switch op.elt {
	case EltwiseReLU:
		if op.alpha == 0 {
			return hwy.Max(v, hwy.Zero[float32]())
		}
		neg := hwy.Mul(v, hwy.Set(op.alpha))
		return hwy.IfThenElse(hwy.GreaterThan(v, hwy.Zero[float32]()), v, neg)
	case EltwiseLinear:
		return hwy.MulAdd(v, hwy.Set(op.alpha), hwy.Set(op.beta))
	case EltwiseClip:
		return hwy.Clamp(v, hwy.Set(op.alpha), hwy.Set(op.beta))
	}
	return v
}
