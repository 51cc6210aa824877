// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildProfileBasic(t *testing.T) {
	sc := MustBwaSwLike()
	query := []Code{CodeA, CodeC, CodeG, CodeT}
	qual := []byte{'I', 'I', 'I', 'I'} // Phred 40

	p, err := BuildProfile(query, qual, sc, LaneWidth8)
	assert.NoError(t, err)
	assert.Equal(t, 4, p.QLen)
	assert.Equal(t, 16, p.WPerV)
	assert.Equal(t, 1, p.NVecRow)

	for i, code := range query {
		stripe := i % p.NVecRow
		lane := i / p.NVecRow
		match := p.Unbias(p.At(code, stripe, lane))
		assert.EqualValues(t, sc.Match, match)
		for other := Code(0); other < 4; other++ {
			if other == code {
				continue
			}
			mismatch := p.Unbias(p.At(other, stripe, lane))
			assert.Less(t, mismatch, match)
		}
	}
}

func TestBuildProfileZeroPadding(t *testing.T) {
	sc := MustBwaSwLike()
	query := make([]Code, 3)
	qual := make([]byte, 3)
	for i := range query {
		query[i] = CodeA
		qual[i] = 'I'
	}

	p, err := BuildProfile(query, qual, sc, LaneWidth16)
	assert.NoError(t, err)
	assert.Equal(t, 8, p.WPerV)
	assert.Equal(t, 1, p.NVecRow)

	// Lanes beyond QLen are zero-padded (i.e. biased value == bias).
	for lane := len(query); lane < p.WPerV; lane++ {
		assert.EqualValues(t, p.Bias, p.At(CodeA, 0, lane))
	}
}

func TestBuildProfileRejectsLengthMismatch(t *testing.T) {
	sc := MustBwaSwLike()
	_, err := BuildProfile([]Code{CodeA, CodeC}, []byte{'I'}, sc, LaneWidth8)
	assert.Error(t, err)
}

func TestLaneWidthSaturationCeiling(t *testing.T) {
	assert.EqualValues(t, 255, LaneWidth8.SaturationCeiling())
	assert.EqualValues(t, 65535, LaneWidth16.SaturationCeiling())
	assert.Equal(t, 16, LaneWidth8.WPerV())
	assert.Equal(t, 8, LaneWidth16.WPerV())
}
