// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrixInitDimensions(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(17, 5, 8))
	assert.Equal(t, 17, m.NRow())
	assert.Equal(t, 5, m.NCol())
	assert.Equal(t, 3, m.NVecRow()) // ceil(17/8)
	assert.Equal(t, 4, m.RowStride())
	assert.Equal(t, 12, m.ColStride()) // nvecrow*4
}

func TestMatrixEltRoundTrip(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(20, 6, 16))
	for row := 0; row < 20; row++ {
		for col := 0; col < 6; col++ {
			m.SetElt(row, col, MatH, int64(row*100+col))
			m.SetElt(row, col, MatE, int64(row*10+col))
			m.SetElt(row, col, MatF, int64(row-col))
		}
	}
	for row := 0; row < 20; row++ {
		for col := 0; col < 6; col++ {
			assert.EqualValues(t, row*100+col, m.HElt(row, col))
			assert.EqualValues(t, row*10+col, m.EElt(row, col))
			assert.EqualValues(t, row-col, m.FElt(row, col))
		}
	}
}

func TestMatrixReuseAcrossInit(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(40, 40, 8))
	m.SetElt(5, 5, MatH, 99)
	bufCap := cap(m.buf)

	assert.NoError(t, m.Init(4, 4, 8))
	assert.LessOrEqual(t, cap(m.buf), bufCap)
	// A freshly re-Init'd cell reads back zero, not stale data.
	assert.EqualValues(t, 0, m.HElt(0, 0))
}

func TestMatrixHMask(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(5, 5, 8))
	assert.False(t, m.IsHMaskSet(2, 3))
	m.HMaskSet(2, 3, 0x15)
	assert.True(t, m.IsHMaskSet(2, 3))
	assert.Equal(t, 0x15, m.HMask(2, 3))

	// Unrelated bits (reportedThru, E/F masks) are untouched.
	assert.False(t, m.ReportedThrough(2, 3))
	assert.False(t, m.IsEMaskSet(2, 3))
	assert.False(t, m.IsFMaskSet(2, 3))
}

func TestMatrixEFMask(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(5, 5, 8))
	m.EMaskSet(1, 1, 2)
	assert.True(t, m.IsEMaskSet(1, 1))
	assert.Equal(t, 2, m.EMask(1, 1))

	m.FMaskSet(1, 1, 1)
	assert.True(t, m.IsFMaskSet(1, 1))
	assert.Equal(t, 1, m.FMask(1, 1))
	// Setting F shouldn't have disturbed E.
	assert.Equal(t, 2, m.EMask(1, 1))
}

func TestMatrixReportedThrough(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(5, 5, 8))
	assert.False(t, m.ReportedThrough(0, 0))
	m.SetReportedThrough(0, 0)
	assert.True(t, m.ReportedThrough(0, 0))
}

func TestMatrixInitMasksClears(t *testing.T) {
	var m Matrix
	assert.NoError(t, m.Init(5, 5, 8))
	m.HMaskSet(2, 2, 7)
	m.SetReportedThrough(2, 2)
	m.InitMasks()
	assert.False(t, m.IsHMaskSet(2, 2))
	assert.False(t, m.ReportedThrough(2, 2))
}

func TestMatrixInitRejectsBadLaneWidth(t *testing.T) {
	var m Matrix
	assert.Error(t, m.Init(5, 5, 12))
	assert.Error(t, m.Init(0, 5, 8))
}
