// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Mode selects whether Fill runs local (Smith-Waterman-style,
// negative-score cells reset to zero, any cell can be a solution) or
// end-to-end (Needleman-Wunsch-style, only the final row is scanned
// for a solution) alignment.
type Mode int

const (
	// ModeLocal is Smith-Waterman local alignment.
	ModeLocal Mode = iota
	// ModeEndToEnd is Needleman-Wunsch global-in-the-query alignment.
	ModeEndToEnd
)

// negInf stands in for an illegal/unreachable predecessor score. Fill
// uses it as an unbiased score like its other running values (it is
// biased only when stored), and it is far enough below any real score
// that comparisons always resolve in favor of the real score.
const negInf TAlScore = -(1 << 40)

// Cell identifies one DP matrix cell and its (unbiased) H score.
type Cell struct {
	Row, Col int
	Score    TAlScore
}

// FillResult is Fill's outcome: whether the 8-bit lane width
// saturated, and — if not — the best-scoring cell plus the full set
// of cells that meet minsc (END_TO_END restricts these to the final
// row).
type FillResult struct {
	Saturated bool
	Best      Cell
	HasBest   bool
	Solutions []Cell
}

// Fill runs the striped affine-gap DP recurrence over matrix m, which
// must already be Init'd to (len(query), len(refWindow), profile's
// lane width). profile and refWindow determine per-cell costs;
// mode and minsc determine how solution cells are gathered.
//
// Column j's H and E values depend only on column j-1 and column j
// itself, so they're computed in a single top-to-bottom-by-stripe
// pass. F additionally depends on H one row up *within the same
// column*, which crosses a stripe boundary once per lane (the stripe-0
// row of lane k>0 needs the stripe-(nvecrow-1) row of lane k-1, not yet
// computed this column) — Farrar's fix-up loop resolves this by
// re-running the stripe pass, using progressively better upstream H
// estimates, until a pass changes nothing or nvecrow passes have run.
func Fill(m *Matrix, profile *Profile, refWindow []Code, mode Mode, sc Scoring, minsc TAlScore, metrics *Metrics) (FillResult, error) {
	nrow, ncol := m.NRow(), m.NCol()
	if nrow != profile.QLen {
		return FillResult{}, errors.E("align: matrix row count does not match profile query length")
	}
	if ncol != len(refWindow) {
		return FillResult{}, errors.E("align: matrix column count does not match reference window length")
	}
	nvecrow, wperv := m.NVecRow(), m.WPerV()
	bias := profile.Bias
	ceiling := profile.Width.SaturationCeiling()

	var result FillResult
	if metrics != nil {
		metrics.DP++
	}

	for col := 0; col < ncol; col++ {
		if metrics != nil {
			metrics.Col++
		}
		refCode := refWindow[col]

		// Main pass: compute E everywhere (no circular dependency), a
		// provisional H from diag and E, and F from the upstream H values
		// already computed this column. Across the stripe-0 lane boundary
		// the upstream row is not computed yet, so F starts at negInf
		// there and the fix-up loop below raises it.
		for s := 0; s < nvecrow; s++ {
			for lane := 0; lane < wperv; lane++ {
				row := lane*nvecrow + s
				if row >= nrow {
					continue
				}
				if metrics != nil {
					metrics.Cell++
					metrics.Inner++
				}
				rowFromEnd := nrow - row - 1
				gapsAllowed := row >= sc.GapBar && rowFromEnd >= sc.GapBar

				var e TAlScore = negInf
				if gapsAllowed {
					if col > 0 {
						hLeft := m.HElt(row, col-1) - bias
						eLeft := m.EElt(row, col-1) - bias
						e = maxTAlScore(hLeft-sc.ReadGapOpen(), eLeft-sc.ReadGapExtend())
					}
				}
				m.SetElt(row, col, MatE, e+bias)

				// The reference window's edges are hard boundaries: a
				// diagonal move needs a predecessor at (row-1, col-1), which
				// doesn't exist once col==0 unless row==0 too, in which case
				// the "predecessor" is the free-start corner (score 0).
				var diag TAlScore
				if col == 0 && row > 0 {
					diag = negInf
				} else {
					var pred TAlScore
					if row > 0 {
						pred = m.HElt(row-1, col-1) - bias
					}
					diag = pred + profile.Unbias(profile.At(refCode, s, lane))
				}

				hprov := maxTAlScore(diag, e)

				var f TAlScore = negInf
				if gapsAllowed {
					var hUp, fUp TAlScore = negInf, negInf
					// Row-1 is stripe s-1 of the same lane, already computed
					// above, only when s > 0.
					if s > 0 {
						hUp = m.HElt(row-1, col) - bias
						fUp = m.FElt(row-1, col) - bias
					}
					f = maxTAlScore(hUp-sc.RefGapOpen(), fUp-sc.RefGapExtend())
				}
				m.SetElt(row, col, MatF, f+bias)

				h := maxTAlScore(hprov, f)
				if mode == ModeLocal && h < 0 {
					h = 0
				}
				biasedH := h + bias
				if profile.Width == LaneWidth8 && biasedH > ceiling {
					biasedH = ceiling
					result.Saturated = true
				}
				m.SetElt(row, col, MatH, biasedH)
			}
		}

		// Farrar fix-up: re-propagate F (and the H it feeds) across the
		// stripe-0 lane boundary until a pass is a no-op. A pass can only
		// shorten the distance between a cell and the upstream value it's
		// still waiting on, so nvecrow passes is always enough; needing
		// more is a bug in the recurrence above, not a slow-to-converge
		// input.
		converged := false
		for pass := 0; pass < nvecrow; pass++ {
			changed := false
			for s := 0; s < nvecrow; s++ {
				for lane := 0; lane < wperv; lane++ {
					row := lane*nvecrow + s
					if row >= nrow || row == 0 {
						continue
					}
					if metrics != nil {
						metrics.Fixup++
					}
					rowFromEnd := nrow - row - 1
					gapsAllowed := row >= sc.GapBar && rowFromEnd >= sc.GapBar
					if !gapsAllowed {
						continue
					}
					hUp := m.HElt(row-1, col) - bias
					fUp := m.FElt(row-1, col) - bias
					newF := maxTAlScore(hUp-sc.RefGapOpen(), fUp-sc.RefGapExtend())
					oldF := m.FElt(row, col) - bias
					if newF != oldF {
						changed = true
						m.SetElt(row, col, MatF, newF+bias)
						curH := m.HElt(row, col) - bias
						h := maxTAlScore(curH, newF)
						if mode == ModeLocal && h < 0 {
							h = 0
						}
						biasedH := h + bias
						if profile.Width == LaneWidth8 && biasedH > ceiling {
							biasedH = ceiling
							result.Saturated = true
						}
						m.SetElt(row, col, MatH, biasedH)
					}
				}
			}
			if !changed {
				converged = true
				break
			}
		}
		if !converged {
			log.Panicf("align: Farrar fix-up did not converge within %d passes at column %d (query length %d, ref window length %d)", nvecrow, col, nrow, ncol)
		}
	}

	if result.Saturated {
		log.Debug.Printf("align: Fill saturated at 8-bit lane width (query length %d, ref window length %d); caller should retry at LaneWidth16", nrow, ncol)
		if metrics != nil {
			metrics.DPSat++
		}
		return result, nil
	}

	gatherSolutions(m, mode, sc, minsc, bias, &result, metrics)

	if metrics != nil {
		if len(result.Solutions) > 0 {
			metrics.DPSucc++
		} else {
			metrics.DPFail++
		}
	}
	return result, nil
}

func gatherSolutions(m *Matrix, mode Mode, sc Scoring, minsc, bias TAlScore, result *FillResult, metrics *Metrics) {
	nrow, ncol := m.NRow(), m.NCol()
	consider := func(row, col int) {
		if metrics != nil {
			metrics.GathCell++
		}
		h := m.HElt(row, col) - bias
		if h < minsc {
			return
		}
		c := Cell{Row: row, Col: col, Score: h}
		result.Solutions = append(result.Solutions, c)
		if metrics != nil {
			metrics.GathSol++
		}
		// On a tie, RowFirst keeps the earliest cell in gathering order
		// (row-major for LOCAL, by column for END_TO_END); otherwise later
		// cells win, preferring the last.
		if !result.HasBest || h > result.Best.Score || (h == result.Best.Score && !sc.RowFirst) {
			result.Best = c
			result.HasBest = true
		}
	}
	if mode == ModeEndToEnd {
		for col := 0; col < ncol; col++ {
			consider(nrow-1, col)
		}
		return
	}
	for row := 0; row < nrow; row++ {
		for col := 0; col < ncol; col++ {
			consider(row, col)
		}
	}
}

func maxTAlScore(a, b TAlScore) TAlScore {
	if a > b {
		return a
	}
	return b
}
