// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"github.com/grailbio/base/errors"
)

// LaneWidth selects the bit width of one SIMD lane. It is resolved
// once per alignment attempt (8-bit first, 16-bit on retry after
// Saturated), per spec.md §9's "trait/enum dispatch" note — there is
// no build-tag-selected backend here, just a runtime switch.
type LaneWidth int

const (
	// LaneWidth8 packs 16 lanes of 8 bits into a 128-bit stripe vector.
	LaneWidth8 LaneWidth = 8
	// LaneWidth16 packs 8 lanes of 16 bits into a 128-bit stripe vector.
	LaneWidth16 LaneWidth = 16
)

// WPerV is the number of query positions ("words") packed per vector
// at this lane width.
func (w LaneWidth) WPerV() int {
	if w == LaneWidth8 {
		return 16
	}
	return 8
}

// SaturationCeiling is the largest biased score representable at this
// lane width. At LaneWidth8, Fill sets its Saturated flag when a live
// cell's H value would exceed it; at LaneWidth16, Fill does not check
// the ceiling.
func (w LaneWidth) SaturationCeiling() int64 {
	if w == LaneWidth8 {
		return 255
	}
	return 65535
}

// Profile is the query profile: for each of the 5 reference letters,
// a striped table of per-query-position match/mismatch costs, bias
// shifted so that unsigned lane arithmetic never goes negative.
type Profile struct {
	Width   LaneWidth
	WPerV   int
	NVecRow int
	QLen    int
	Bias    int64

	// cost[code] has length NVecRow*WPerV, addressed by
	// stripe*WPerV+lane; cost[code][stripe*WPerV+lane] is the biased
	// cost at query row lane*NVecRow+stripe.
	cost [5][]int64
}

// BuildProfile computes the query profile for query (base codes,
// CodeA..CodeN) against quality qual (Phred+33 ASCII, one byte per
// query position) under scoring sc, striped at the given lane width.
func BuildProfile(query []Code, qual []byte, sc Scoring, width LaneWidth) (*Profile, error) {
	m := len(query)
	if m == 0 {
		return nil, errors.E("align: empty query")
	}
	if len(qual) != m {
		return nil, errors.E("align: query/quality length mismatch")
	}
	wperv := width.WPerV()
	nvecrow := (m + wperv - 1) / wperv

	p := &Profile{
		Width:   width,
		WPerV:   wperv,
		NVecRow: nvecrow,
		QLen:    m,
	}

	raw := make([][]int64, 5)
	var minCost int64
	first := true
	for code := Code(0); code < 5; code++ {
		row := make([]int64, m)
		refBits := code.Bits()
		for i := 0; i < m; i++ {
			q := int64(qual[i]) - 33
			c := sc.Score(query[i].Bits(), refBits, q)
			row[i] = c
			if first || c < minCost {
				minCost = c
				first = false
			}
		}
		raw[code] = row
	}
	p.Bias = -minCost

	for code := Code(0); code < 5; code++ {
		vec := make([]int64, nvecrow*wperv)
		for stripe := 0; stripe < nvecrow; stripe++ {
			for lane := 0; lane < wperv; lane++ {
				row := lane*nvecrow + stripe
				var biased int64
				if row < m {
					biased = raw[code][row] + p.Bias
				} else {
					biased = p.Bias
				}
				vec[stripe*wperv+lane] = biased
			}
		}
		p.cost[code] = vec
	}
	return p, nil
}

// At returns the biased cost for reference letter code at the given
// stripe and lane.
func (p *Profile) At(code Code, stripe, lane int) int64 {
	return p.cost[code][stripe*p.WPerV+lane]
}

// Unbias converts a biased cost or cell score back to its real value.
func (p *Profile) Unbias(v int64) int64 {
	return v - p.Bias
}
