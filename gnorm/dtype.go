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

// DataType identifies the element type of a tensor buffer.
type DataType int

const (
	// F32 is 32-bit IEEE float.
	F32 DataType = iota

	// BF16 is 16-bit brain float (8-bit exponent, 7-bit mantissa).
	BF16

	// F16 is 16-bit IEEE half precision.
	F16

	// S8 is signed 8-bit integer.
	S8

	// U8 is unsigned 8-bit integer.
	U8
)

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case F32:
		return 4
	case BF16, F16:
		return 2
	case S8, U8:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case F32:
		return "f32"
	case BF16:
		return "bf16"
	case F16:
		return "f16"
	case S8:
		return "s8"
	case U8:
		return "u8"
	default:
		return "undef"
	}
}

// Memory is a typed view over caller-allocated tensor storage. The primitive
// never allocates tensor storage; it only reads and writes through views the
// caller constructs with one of F32Memory, BF16Memory, F16Memory, S8Memory
// or U8Memory.
type Memory struct {
	dt   DataType
	f32  []float32
	bf16 []hwy.BFloat16
	f16  []hwy.Float16
	s8   []int8
	u8   []uint8
}

// F32Memory wraps a float32 slice.
func F32Memory(s []float32) Memory { return Memory{dt: F32, f32: s} }

// BF16Memory wraps a bfloat16 slice.
func BF16Memory(s []hwy.BFloat16) Memory { return Memory{dt: BF16, bf16: s} }

// F16Memory wraps a float16 slice.
func F16Memory(s []hwy.Float16) Memory { return Memory{dt: F16, f16: s} }

// S8Memory wraps an int8 slice.
func S8Memory(s []int8) Memory { return Memory{dt: S8, s8: s} }

// U8Memory wraps a uint8 slice.
func U8Memory(s []uint8) Memory { return Memory{dt: U8, u8: s} }

// Type returns the element type of the view.
func (m Memory) Type() DataType { return m.dt }

// Len returns the number of elements in the view.
func (m Memory) Len() int {
	switch m.dt {
	case F32:
		return len(m.f32)
	case BF16:
		return len(m.bf16)
	case F16:
		return len(m.f16)
	case S8:
		return len(m.s8)
	case U8:
		return len(m.u8)
	default:
		return 0
	}
}

// IsNil reports whether the view has no backing storage.
func (m Memory) IsNil() bool { return m.Len() == 0 }
