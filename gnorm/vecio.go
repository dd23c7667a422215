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

// ioHelper performs typed load/store between tensor storage and float32
// staging lanes. Loads widen to float32; stores narrow with rounding and,
// for 8-bit integer destinations, saturation to the representable range.
// Narrow float formats go through the emulated conversion path selected by
// the I/O tier. The helper is stateless and safe for concurrent use.
type ioHelper struct {
	dt   DataType
	tier Tier

	saturate bool
	lo, hi   float32
}

func newIOHelper(dt DataType, tier Tier) ioHelper {
	h := ioHelper{dt: dt, tier: tier}
	switch dt {
	case S8:
		h.saturate, h.lo, h.hi = true, -128, 127
	case U8:
		h.saturate, h.lo, h.hi = true, 0, 255
	}
	return h
}

// load widens count elements starting at mem[off] into dst. Lanes past
// count are zeroed so that masked tail chunks contribute exactly zero to
// any downstream accumulation.
func (h ioHelper) load(mem Memory, off int, dst []float32, count int) {
	switch h.dt {
	case F32:
		copy(dst[:count], mem.f32[off:off+count])
	case BF16:
		for i := 0; i < count; i++ {
			dst[i] = mem.bf16[off+i].Float32()
		}
	case F16:
		for i := 0; i < count; i++ {
			dst[i] = mem.f16[off+i].Float32()
		}
	case S8:
		for i := 0; i < count; i++ {
			dst[i] = float32(mem.s8[off+i])
		}
	case U8:
		for i := 0; i < count; i++ {
			dst[i] = float32(mem.u8[off+i])
		}
	}
	for i := count; i < len(dst); i++ {
		dst[i] = 0
	}
}

// store narrows count lanes of src into mem starting at mem[off],
// saturating 8-bit integer destinations before conversion. Lanes past
// count are never written.
func (h ioHelper) store(src []float32, mem Memory, off, count int) {
	switch h.dt {
	case F32:
		copy(mem.f32[off:off+count], src[:count])
	case BF16:
		for i := 0; i < count; i++ {
			mem.bf16[off+i] = hwy.Float32ToBFloat16(src[i])
		}
	case F16:
		for i := 0; i < count; i++ {
			mem.f16[off+i] = hwy.Float32ToFloat16(src[i])
		}
	case S8:
		for i := 0; i < count; i++ {
			mem.s8[off+i] = int8(h.round(src[i]))
		}
	case U8:
		for i := 0; i < count; i++ {
			mem.u8[off+i] = uint8(h.round(src[i]))
		}
	}
}

// round clamps to the destination range and rounds to nearest even,
// matching hardware float-to-int conversion semantics.
func (h ioHelper) round(v float32) int32 {
	if h.saturate {
		if v < h.lo {
			v = h.lo
		}
		if v > h.hi {
			v = h.hi
		}
	}
	return int32(math.RoundToEven(float64(v)))
}
