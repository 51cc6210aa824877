// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"math/bits"
	"math/rand"
)

// Transition identifies which predecessor a backtrace step moved to.
type Transition int

const (
	// BtOallDiag is an H-cell diagonal move (match or mismatch).
	BtOallDiag Transition = iota
	// BtOallRefOpen is an H-cell move up into a newly opened F gap.
	BtOallRefOpen
	// BtOallReadOpen is an H-cell move left into a newly opened E gap.
	BtOallReadOpen
	// BtRfgapExtend is an F-cell move up, extending an existing ref gap.
	BtRfgapExtend
	// BtRdgapExtend is an E-cell move left, extending an existing read gap.
	BtRdgapExtend
)

// cellType identifies which of the three matrices a backtrace step is
// currently standing on.
type cellType int

const (
	ctE cellType = MatE
	ctF cellType = MatF
	ctH cellType = MatH
)

// alts5 and firsts5 are lookup tables over the 5-bit H-cell legality
// mask: alts5[mask] is the number of set bits, firsts5[mask] is the
// index of the lowest set bit (meaningful only when alts5[mask]==1).
var alts5 [32]int
var firsts5 [32]int

func init() {
	for mask := 0; mask < 32; mask++ {
		alts5[mask] = bits.OnesCount(uint(mask))
		firsts5[mask] = bits.TrailingZeros(uint(mask))
	}
}

// randFromMask picks one of the set bits of mask uniformly at random
// and returns its index. mask must be nonzero.
func randFromMask(r *rand.Rand, mask int) int {
	n := bits.OnesCount(uint(mask))
	pick := r.Intn(n)
	for i := 0; i < 32; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if pick == 0 {
			return i
		}
		pick--
	}
	panic("align: randFromMask: unreachable")
}

// AnalyzeCell inspects the cell at (row, col) of matrix type ct and
// determines the set of legal predecessor transitions consistent with
// the scores already stored in m, then picks one uniformly at random
// among the remaining legal options (consulting and updating m's
// per-cell mask so a later call resumes rather than re-choosing a
// consumed option).
//
// refBits and readBits/readq are only consulted for H cells, to
// recompute the diagonal match/mismatch score.
func AnalyzeCell(
	m *Matrix,
	row, col int,
	ct cellType,
	refBits, readBits byte,
	readq int64,
	sc Scoring,
	offsetsc, floorsc TAlScore,
	r *rand.Rand,
) (empty bool, cur Transition, branch, canMoveThru, reportedThru bool) {
	reportedThru = m.ReportedThrough(row, col)
	canMoveThru = true
	if reportedThru {
		canMoveThru = false
		return
	}
	if row == 0 {
		empty = true
		canMoveThru = true
		return
	}

	nrow := m.NRow()
	rowFromEnd := nrow - row - 1
	gapsAllowed := row >= sc.GapBar && rowFromEnd >= sc.GapBar

	switch ct {
	case ctE:
		scCur := m.EElt(row, col) + offsetsc
		origMask := 0
		scHLeft := m.HElt(row, col-1) + offsetsc
		if scHLeft > floorsc && scHLeft-sc.ReadGapOpen() == scCur {
			origMask |= 1 << 0
		}
		scELeft := m.EElt(row, col-1) + offsetsc
		if scELeft > floorsc && scELeft-sc.ReadGapExtend() == scCur {
			origMask |= 1 << 1
		}
		mask := origMask
		if m.IsEMaskSet(row, col) {
			mask = m.EMask(row, col)
		}
		switch mask {
		case 3:
			if r.Intn(2) == 1 {
				cur = BtOallReadOpen
				m.EMaskSet(row, col, 2)
			} else {
				cur = BtRdgapExtend
				m.EMaskSet(row, col, 1)
			}
			branch = true
		case 2:
			cur = BtRdgapExtend
			m.EMaskSet(row, col, 0)
		case 1:
			cur = BtOallReadOpen
			m.EMaskSet(row, col, 0)
		default:
			empty = true
			canMoveThru = origMask == 0
		}

	case ctF:
		scCur := m.FElt(row, col) + offsetsc
		origMask := 0
		scHUp := m.HElt(row-1, col) + offsetsc
		if scHUp > floorsc && scHUp-sc.RefGapOpen() == scCur {
			origMask |= 1 << 0
		}
		scFUp := m.FElt(row-1, col) + offsetsc
		if scFUp > floorsc && scFUp-sc.RefGapExtend() == scCur {
			origMask |= 1 << 1
		}
		mask := origMask
		if m.IsFMaskSet(row, col) {
			mask = m.FMask(row, col)
		}
		switch mask {
		case 3:
			if r.Intn(2) == 1 {
				cur = BtOallRefOpen
				m.FMaskSet(row, col, 2)
			} else {
				cur = BtRfgapExtend
				m.FMaskSet(row, col, 1)
			}
			branch = true
		case 2:
			cur = BtRfgapExtend
			m.FMaskSet(row, col, 0)
		case 1:
			cur = BtOallRefOpen
			m.FMaskSet(row, col, 0)
		default:
			empty = true
			canMoveThru = origMask == 0
		}

	default: // ctH
		scCur := m.HElt(row, col) + offsetsc
		scFUp := m.FElt(row-1, col) + offsetsc
		scHUp := m.HElt(row-1, col) + offsetsc
		var scHLeft, scELeft, scHUpleft TAlScore
		if col > 0 {
			scHLeft = m.HElt(row, col-1) + offsetsc
			scELeft = m.EElt(row, col-1) + offsetsc
			scHUpleft = m.HElt(row-1, col-1) + offsetsc
		} else {
			scHLeft, scELeft, scHUpleft = floorsc, floorsc, floorsc
		}
		scDiag := sc.Score(readBits, refBits, readq-33)

		mask := 0
		if gapsAllowed {
			if scHUp > floorsc && scCur == scHUp-sc.RefGapOpen() {
				mask |= 1 << 0
			}
			if scHLeft > floorsc && scCur == scHLeft-sc.ReadGapOpen() {
				mask |= 1 << 1
			}
			if scFUp > floorsc && scCur == scFUp-sc.RefGapExtend() {
				mask |= 1 << 2
			}
			if scELeft > floorsc && scCur == scELeft-sc.ReadGapExtend() {
				mask |= 1 << 3
			}
		}
		if scHUpleft > floorsc && scCur == scHUpleft+scDiag {
			mask |= 1 << 4
		}
		origMask := mask
		if m.IsHMaskSet(row, col) {
			mask = m.HMask(row, col)
		}

		opts := alts5[mask]
		select_ := -1
		switch {
		case opts == 1:
			select_ = firsts5[mask]
			m.HMaskSet(row, col, 0)
		case opts > 1:
			select_ = randFromMask(r, mask)
			mask &^= 1 << select_
			m.HMaskSet(row, col, mask)
			branch = true
		}
		switch select_ {
		case 4:
			cur = BtOallDiag
		case 0:
			cur = BtOallRefOpen
		case 1:
			cur = BtOallReadOpen
		case 2:
			cur = BtRfgapExtend
		case 3:
			cur = BtRdgapExtend
		default:
			empty = true
			canMoveThru = origMask == 0
		}
	}
	return
}

// Step is one link of a backtrace transcript: the cell it left from,
// the cell type it was standing on, and the transition taken.
type Step struct {
	Row, Col int
	Type     cellType
	Move     Transition
}

// Walk repeatedly calls AnalyzeCell starting from (row, col) on the H
// matrix, following the chosen transitions until termination: the
// walk reaches row==0, AnalyzeCell finds no remaining option at the
// current cell (at any row), the current cell is already reportedThru,
// or (in local mode) the current cell's score drops to or below
// floorsc. A walk that stops early returns the steps taken so far and
// no error. Only the cell where the
// walk actually terminates has its reportedThru bit set; cells merely
// passed through keep whatever mask bits AnalyzeCell consumed, so a
// later Walk that reaches the same branch cell still finds its
// HMask/EMask/FMask intact and picks the remaining option instead of
// immediately bailing out on reportedThru.
func Walk(
	m *Matrix,
	startRow, startCol int,
	refWindow []Code, query []Code, qual []byte,
	sc Scoring,
	offsetsc, floorsc TAlScore,
	local bool,
	r *rand.Rand,
) []Step {
	var steps []Step
	row, col := startRow, startCol
	ct := ctH
	for {
		if local {
			scCur := m.Elt(row, col, int(ct)) + offsetsc
			if scCur <= floorsc {
				m.SetReportedThrough(row, col)
				break
			}
		}
		// The character that produced this cell's diagonal score is
		// query[row] (Fill indexes the profile directly by row, with no
		// separate sentinel row for "before the read starts").
		var refBits, readBits byte
		var readq int64
		if ct == ctH && row > 0 {
			readBits = query[row].Bits()
			refBits = refWindow[col].Bits()
			readq = int64(qual[row])
		}
		empty, cur, _, canMoveThru, reportedThru := AnalyzeCell(
			m, row, col, ct, refBits, readBits, readq, sc, offsetsc, floorsc, r)
		if reportedThru {
			break
		}
		if empty {
			m.SetReportedThrough(row, col)
			if canMoveThru && row == 0 {
				break
			}
			break
		}
		steps = append(steps, Step{Row: row, Col: col, Type: ct, Move: cur})
		switch cur {
		case BtOallDiag:
			row, col, ct = row-1, col-1, ctH
		case BtOallRefOpen:
			row, ct = row-1, ctH
		case BtOallReadOpen:
			col, ct = col-1, ctH
		case BtRfgapExtend:
			row, ct = row-1, ctF
		case BtRdgapExtend:
			col, ct = col-1, ctE
		}
	}
	return steps
}
