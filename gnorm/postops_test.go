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
	"testing"

	"github.com/ajroetker/go-highway/hwy"
)

// applyChain runs a post-op chain over a 4-lane vector and returns the
// result lanes.
func applyChain(t *testing.T, ops []PostOp, in []float32, dst Memory, operands [][]float32) []float32 {
	t.Helper()
	inj, err := newPostOpsInjector(ops, newIOHelper(dst.Type(), TierVec128))
	if err != nil {
		t.Fatal(err)
	}
	v := inj.compute(hwy.Load(in), dst, 0, len(in), operands)
	out := make([]float32, len(in))
	hwy.Store(v, out)
	return out
}

func TestPostOpsEltwise(t *testing.T) {
	in := []float32{-2, -0.5, 0.5, 2}

	cases := []struct {
		name string
		op   PostOp
		want []float32
	}{
		{"relu", Eltwise(EltwiseReLU, 0, 0), []float32{0, 0, 0.5, 2}},
		{"leaky relu", Eltwise(EltwiseReLU, 0.1, 0), []float32{-0.2, -0.05, 0.5, 2}},
		{"linear", Eltwise(EltwiseLinear, 2, 1), []float32{-3, 0, 2, 5}},
		{"identity linear", Eltwise(EltwiseLinear, 1, 0), []float32{-2, -0.5, 0.5, 2}},
		{"clip", Eltwise(EltwiseClip, -1, 1), []float32{-1, -0.5, 0.5, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := applyChain(t, []PostOp{tc.op}, in, F32Memory(make([]float32, 4)), nil)
			for i := range tc.want {
				if !almostEqual(float64(got[i]), float64(tc.want[i]), 1e-6) {
					t.Errorf("lane %d: got %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestPostOpsBinary(t *testing.T) {
	in := []float32{-2, 0, 1, 4}

	cases := []struct {
		name    string
		op      PostOp
		operand float32
		want    []float32
	}{
		{"add", Binary(BinaryAdd), 3, []float32{1, 3, 4, 7}},
		{"sub", Binary(BinarySub), 1, []float32{-3, -1, 0, 3}},
		{"mul", Binary(BinaryMul), 2, []float32{-4, 0, 2, 8}},
		{"div", Binary(BinaryDiv), 4, []float32{-0.5, 0, 0.25, 1}},
		{"max", Binary(BinaryMax), 0.5, []float32{0.5, 0.5, 1, 4}},
		{"min", Binary(BinaryMin), 0.5, []float32{-2, 0, 0.5, 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := applyChain(t, []PostOp{tc.op}, in,
				F32Memory(make([]float32, 4)), [][]float32{{tc.operand}})
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("lane %d: got %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestPostOpsSum(t *testing.T) {
	in := []float32{1, 2, 3, 4}
	dst := F32Memory([]float32{10, 20, 30, 40})

	got := applyChain(t, []PostOp{Sum(0.5)}, in, dst, nil)
	want := []float32{6, 12, 18, 24}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lane %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPostOpsChainOrder(t *testing.T) {
	// linear(2x+1) then relu: order matters for negative inputs.
	in := []float32{-1, -0.25, 0, 1}
	ops := []PostOp{
		Eltwise(EltwiseLinear, 2, 1),
		Eltwise(EltwiseReLU, 0, 0),
	}
	got := applyChain(t, ops, in, F32Memory(make([]float32, 4)), nil)
	want := []float32{0, 0.5, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lane %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPostOpsOperandPositions(t *testing.T) {
	// Binary operands are keyed by chain position, not binary ordinal.
	in := []float32{1, 1, 1, 1}
	ops := []PostOp{
		Eltwise(EltwiseLinear, 1, 0),
		Binary(BinaryAdd),
		Binary(BinaryMul),
	}
	operands := [][]float32{nil, {2}, {10}}
	got := applyChain(t, ops, in, F32Memory(make([]float32, 4)), operands)
	for i := range got {
		if got[i] != 30 {
			t.Errorf("lane %d: got %v, want 30", i, got[i])
		}
	}
}

func TestPostOpsValidateOperands(t *testing.T) {
	inj, err := newPostOpsInjector(
		[]PostOp{Eltwise(EltwiseReLU, 0, 0), Binary(BinaryAdd)},
		newIOHelper(F32, TierVec128))
	if err != nil {
		t.Fatal(err)
	}

	if err := inj.validateOperands([][]float32{nil, {1}}); err != nil {
		t.Errorf("complete operands rejected: %v", err)
	}
	if err := inj.validateOperands(nil); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("missing operand: got %v, want ErrMissingArgument", err)
	}
	if err := inj.validateOperands([][]float32{{1}}); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("operand at wrong position: got %v, want ErrMissingArgument", err)
	}
}

func TestPostOpsEmptyChain(t *testing.T) {
	inj, err := newPostOpsInjector(nil, newIOHelper(F32, TierVec128))
	if err != nil {
		t.Fatal(err)
	}
	if inj != nil {
		t.Error("empty chain should produce a nil injector")
	}
}

func TestPostOpsSumThroughNarrowDst(t *testing.T) {
	// Sum reads the destination through its typed conversion path.
	cur := make([]hwy.BFloat16, 4)
	for i := range cur {
		cur[i] = hwy.Float32ToBFloat16(float32(i + 1))
	}
	dst := BF16Memory(cur)

	in := []float32{10, 10, 10, 10}
	got := applyChain(t, []PostOp{Sum(1)}, in, dst, nil)
	want := []float32{11, 12, 13, 14}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lane %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
