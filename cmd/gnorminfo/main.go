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

// Command gnorminfo reports which kernel configuration group normalization
// would generate on this machine for a given shape.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/ajroetker/go-groupnorm/gnorm"
)

func main() {
	var (
		n    = flag.Int("n", 1, "batch size")
		c    = flag.Int("c", 64, "channels")
		g    = flag.Int("g", 8, "groups")
		h    = flag.Int("h", 14, "spatial height")
		w    = flag.Int("w", 14, "spatial width")
		src  = flag.String("src", "f32", "source type: f32, bf16, f16, s8, u8")
		dst  = flag.String("dst", "f32", "destination type: f32, bf16, f16, s8, u8")
		thrs = flag.Int("threads", runtime.GOMAXPROCS(0), "worker count")
	)
	flag.Parse()

	srcType, err := parseType(*src)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	dstType, err := parseType(*dst)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	desc := gnorm.Desc{
		N: *n, C: *c, G: *g, H: *h, W: *w,
		SrcType: srcType,
		DstType: dstType,
		Epsilon: 1e-5,
	}

	prim, err := gnorm.New(desc, gnorm.WithThreads(*thrs))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer prim.Close()

	cPerG := *c / *g
	strategy := "multi-worker-group"
	if cPerG >= gnorm.DefaultGroupThreshold {
		strategy = "single-worker-group"
	}

	fmt.Printf("shape:         N=%d C=%d G=%d H=%d W=%d (%d channels/group)\n",
		*n, *c, *g, *h, *w, cPerG)
	fmt.Printf("types:         %s -> %s\n", srcType, dstType)
	fmt.Printf("compute tier:  %s (%d f32 lanes)\n", prim.Tier(), prim.Tier().Lanes())
	fmt.Printf("i/o tier:      %s\n", prim.IOTier())
	fmt.Printf("strategy:      %s (%d workers)\n", strategy, *thrs)
}

func parseType(s string) (gnorm.DataType, error) {
	switch s {
	case "f32":
		return gnorm.F32, nil
	case "bf16":
		return gnorm.BF16, nil
	case "f16":
		return gnorm.F16, nil
	case "s8":
		return gnorm.S8, nil
	case "u8":
		return gnorm.U8, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}
