// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// Vec128 is the Go stand-in for the source aligner's __m128i stripe
// vector: a fixed-size lane array, at most 16 of which are live
// depending on the matrix's lane width. There is no assembly backend;
// lane operations are plain loops over the active lanes (spec.md §9).
type Vec128 struct {
	Lanes [16]int64
}

// Quartet member indices: each DP cell owns one vector from each of
// E, F, H, and a TMP vector. Fill and the backtrace do not use TMP
// (masks live in their own parallel array — see Matrix.masks).
const (
	MatE   = 0
	MatF   = 1
	MatH   = 2
	MatTMP = 3
)

// nvecPerCell is the number of vectors (E, F, H, TMP) in one quartet.
const nvecPerCell = 4

// Matrix is the packed E/F/H/TMP striped DP matrix plus its per-cell
// backtrace mask word. Matrices are reused across candidate
// alignments within one thread via Init; they are not safe for
// concurrent use.
type Matrix struct {
	inited bool

	nrow, ncol       int
	nvecrow, nveccol int
	wperv            int
	colstride        int
	rowstride        int

	buf   []Vec128
	masks []uint16
}

// Init allocates (or, if the existing buffers are large enough,
// reuses) the matrix buffer to hold an nrow x ncol matrix striped at
// wperv lanes per vector. Init is idempotent for content consumers
// after a following InitMasks call with the same dimensions.
func (m *Matrix) Init(nrow, ncol, wperv int) error {
	if nrow <= 0 || ncol <= 0 {
		return errors.E("align: matrix dimensions must be positive")
	}
	if wperv != 8 && wperv != 16 {
		return errors.E("align: wperv must be 8 or 16")
	}
	nvecrow := (nrow + wperv - 1) / wperv
	rowstride := nvecPerCell
	colstride := nvecrow * nvecPerCell

	need := ncol * colstride
	if cap(m.buf) >= need {
		m.buf = m.buf[:need]
		for i := range m.buf {
			m.buf[i] = Vec128{}
		}
	} else {
		m.buf = make([]Vec128, need)
	}

	maskNeed := nrow * ncol
	if cap(m.masks) >= maskNeed {
		m.masks = m.masks[:maskNeed]
	} else {
		m.masks = make([]uint16, maskNeed)
	}
	for i := range m.masks {
		m.masks[i] = 0
	}

	m.nrow, m.ncol = nrow, ncol
	m.nvecrow, m.nveccol = nvecrow, ncol
	m.wperv = wperv
	m.colstride, m.rowstride = colstride, rowstride
	m.inited = true
	return nil
}

// NRow returns the number of logical rows (query positions).
func (m *Matrix) NRow() int { return m.nrow }

// NCol returns the number of logical columns (reference positions).
func (m *Matrix) NCol() int { return m.ncol }

// NVecRow returns the number of stripes.
func (m *Matrix) NVecRow() int { return m.nvecrow }

// WPerV returns the number of lanes per vector.
func (m *Matrix) WPerV() int { return m.wperv }

// ColStride is the number of vectors between adjacent columns.
func (m *Matrix) ColStride() int { return m.colstride }

// RowStride is the number of vectors between adjacent stripes within
// a column.
func (m *Matrix) RowStride() int { return m.rowstride }

func (m *Matrix) checkInited() {
	if !m.inited {
		panic("align: matrix used before Init")
	}
}

// At returns a pointer to the quartet member `which` (MatE/MatF/MatH/
// MatTMP) at vector-row (stripe) and column. This is the stride math
// spec.md §9 asks to hide behind a single accessor.
func (m *Matrix) At(stripe, col, which int) *Vec128 {
	m.checkInited()
	idx := col*m.colstride + stripe*m.rowstride + which
	return &m.buf[idx]
}

// AtUnsafe computes the same index as At. The buffer holds exactly
// NCol() columns, so col == NCol() (one past the final column) is out
// of range here as it is for At.
func (m *Matrix) AtUnsafe(stripe, col, which int) *Vec128 {
	m.checkInited()
	idx := col*m.colstride + stripe*m.rowstride + which
	return &m.buf[idx]
}

func (m *Matrix) rowCoords(row int) (stripe, lane int) {
	return row % m.nvecrow, row / m.nvecrow
}

// Elt returns the element at (row, col, mat), where mat is one of
// MatE/MatF/MatH.
func (m *Matrix) Elt(row, col, mat int) int64 {
	m.checkInited()
	stripe, lane := m.rowCoords(row)
	return m.At(stripe, col, mat).Lanes[lane]
}

// SetElt writes the element at (row, col, mat).
func (m *Matrix) SetElt(row, col, mat int, v int64) {
	m.checkInited()
	stripe, lane := m.rowCoords(row)
	m.At(stripe, col, mat).Lanes[lane] = v
}

// EElt, FElt, HElt are convenience accessors for the E, F, and H
// matrices respectively.
func (m *Matrix) EElt(row, col int) int64 { return m.Elt(row, col, MatE) }
func (m *Matrix) FElt(row, col int) int64 { return m.Elt(row, col, MatF) }
func (m *Matrix) HElt(row, col int) int64 { return m.Elt(row, col, MatH) }

// mask word bit layout, per spec.md §3.
const (
	bitReportedThru = 0
	bitHMaskSet     = 1
	offHMask        = 2
	bitEMaskSet     = 7
	offEMask        = 8
	bitFMaskSet     = 10
	offFMask        = 11
)

func (m *Matrix) maskIdx(row, col int) int {
	return row*m.ncol + col
}

// ReportedThrough returns true iff the cell's reportedThru bit is set.
func (m *Matrix) ReportedThrough(row, col int) bool {
	return m.masks[m.maskIdx(row, col)]&(1<<bitReportedThru) != 0
}

// SetReportedThrough sets the cell's reportedThru bit.
func (m *Matrix) SetReportedThrough(row, col int) {
	m.masks[m.maskIdx(row, col)] |= 1 << bitReportedThru
}

// IsHMaskSet returns true iff HMaskSet has previously been called for
// this cell.
func (m *Matrix) IsHMaskSet(row, col int) bool {
	return m.masks[m.maskIdx(row, col)]&(1<<bitHMaskSet) != 0
}

// HMaskSet stores the 5-bit remaining-options mask for the H cell at
// (row, col).
func (m *Matrix) HMaskSet(row, col int, mask int) {
	i := m.maskIdx(row, col)
	m.masks[i] &^= uint16(0x1F) << offHMask
	m.masks[i] |= (1 << bitHMaskSet) | uint16(mask&0x1F)<<offHMask
}

// HMask returns the stored H remaining-options mask.
func (m *Matrix) HMask(row, col int) int {
	return int((m.masks[m.maskIdx(row, col)] >> offHMask) & 0x1F)
}

// IsEMaskSet returns true iff EMaskSet has previously been called for
// this cell.
func (m *Matrix) IsEMaskSet(row, col int) bool {
	return m.masks[m.maskIdx(row, col)]&(1<<bitEMaskSet) != 0
}

// EMaskSet stores the 2-bit remaining-options mask for the E cell at
// (row, col).
func (m *Matrix) EMaskSet(row, col int, mask int) {
	i := m.maskIdx(row, col)
	m.masks[i] &^= uint16(0x3) << offEMask
	m.masks[i] |= (1 << bitEMaskSet) | uint16(mask&0x3)<<offEMask
}

// EMask returns the stored E remaining-options mask.
func (m *Matrix) EMask(row, col int) int {
	return int((m.masks[m.maskIdx(row, col)] >> offEMask) & 0x3)
}

// IsFMaskSet returns true iff FMaskSet has previously been called for
// this cell.
func (m *Matrix) IsFMaskSet(row, col int) bool {
	return m.masks[m.maskIdx(row, col)]&(1<<bitFMaskSet) != 0
}

// FMaskSet stores the 2-bit remaining-options mask for the F cell at
// (row, col).
func (m *Matrix) FMaskSet(row, col int, mask int) {
	i := m.maskIdx(row, col)
	m.masks[i] &^= uint16(0x3) << offFMask
	m.masks[i] |= (1 << bitFMaskSet) | uint16(mask&0x3)<<offFMask
}

// FMask returns the stored F remaining-options mask.
func (m *Matrix) FMask(row, col int) int {
	return int((m.masks[m.maskIdx(row, col)] >> offFMask) & 0x3)
}

// InitMasks clears every cell's backtrace state. It is called once at
// the start of each backtrace phase; Init also clears the masks, along
// with the whole buffer, every time it is called.
func (m *Matrix) InitMasks() {
	for i := range m.masks {
		m.masks[i] = 0
	}
}

// String renders the H matrix for debugging, in the same row-major,
// column-aligned style as a plain Levenshtein distance matrix dump.
func (m *Matrix) String() string {
	if !m.inited {
		return "<uninitialized align.Matrix>"
	}
	var b strings.Builder
	for row := 0; row < m.nrow; row++ {
		parts := make([]string, m.ncol)
		for col := 0; col < m.ncol; col++ {
			parts[col] = fmt.Sprintf("%4d", m.HElt(row, col))
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteByte('\n')
	}
	return b.String()
}
