// Copyright 2025 The go-groupnorm Authors. SPDX-License-Identifier: Apache-2.0

package gnorm

// scratchpad is a registrar for named temporary buffers booked once at
// configuration time. Buffers live for the primitive's lifetime but their
// contents are only meaningful within one forward call.
type scratchpad struct {
	bufs map[string][]float32
}

const (
	keyReduction = "gnorm_reduction"
	keyTmpMean   = "gnorm_tmp_mean"
	keyTmpVar    = "gnorm_tmp_var"
)

func newScratchpad() *scratchpad {
	return &scratchpad{bufs: make(map[string][]float32)}
}

func (s *scratchpad) book(key string, n int) {
	s.bufs[key] = make([]float32, n)
}

func (s *scratchpad) get(key string) []float32 {
	return s.bufs[key]
}
