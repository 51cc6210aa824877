// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import (
	"math"

	"github.com/grailbio/base/errors"
)

// TAlScore is the signed alignment score type used throughout this
// package, matching the source aligner's TAlScore.
type TAlScore = int64

// CostModel selects how a mismatch or read-N penalty depends on the
// base's reported quality value.
type CostModel int

const (
	// CostConstant always charges a fixed penalty, independent of quality.
	CostConstant CostModel = iota
	// CostRoundedQual charges a quality-bucket-rounded version of q.
	CostRoundedQual
	// CostQual charges exactly q.
	CostQual
)

// qualRoundTable buckets a raw quality value down to the nearest
// multiple of 10, the "table-rounded" mismatch/N cost spec.md's
// ROUNDED_QUAL mode calls for.
var qualRoundTable [256]int64

func init() {
	for q := 0; q < 256; q++ {
		qualRoundTable[q] = int64((q / 10) * 10)
	}
}

// Base codes for the 5-letter DNA alphabet. These index Profile's
// per-reference-letter stripes and are the unit Scoring.NFilter counts.
type Code byte

const (
	CodeA Code = 0
	CodeC Code = 1
	CodeG Code = 2
	CodeT Code = 3
	CodeN Code = 4
)

// Bits returns the 4-bit IUPAC mask for a pure base code, or 0 for
// CodeN. 0 is also the sentinel Scoring.Score uses for "the read base
// is N" — by construction no non-N code ever maps to 0.
func (c Code) Bits() byte {
	switch c {
	case CodeA:
		return ibaseA
	case CodeC:
		return ibaseC
	case CodeG:
		return ibaseG
	case CodeT:
		return ibaseT
	default:
		return 0
	}
}

const (
	ibaseA byte = 1
	ibaseC byte = 2
	ibaseG byte = 4
	ibaseT byte = 8
	// ibaseN is the "matches anything" IUPAC mask, used to mark an
	// ambiguous/N reference position.
	ibaseN byte = 0xF
)

// Scoring holds an immutable scoring scheme: match reward, mismatch/N
// penalty policy, affine gap costs, and the score-floor and N-filter
// linear functions. All queries the aligner makes about penalties and
// rewards route through a Scoring value.
type Scoring struct {
	Match int64

	MMCostType CostModel
	MMPen      int64
	Snp        int64

	NPenType CostModel
	NPen     int64
	NCatPair bool

	MinConst, MinLinear     float64
	FloorConst, FloorLinear float64
	NCeilConst, NCeilLinear float64

	ReadGapConst, ReadGapLinear int64
	RefGapConst, RefGapLinear   int64

	GapBar   int
	RowLo    int
	RowFirst bool
}

// NewScoring validates and constructs a Scoring. The argument order
// mirrors Scoring::new in the source aligner's scoring model.
func NewScoring(
	match int64,
	mmcostType CostModel, mmpen int64, snp int64,
	minConst, minLinear float64,
	floorConst, floorLinear float64,
	nCeilConst, nCeilLinear float64,
	npenType CostModel, npen int64, ncatpair bool,
	readGapConst, refGapConst int64,
	readGapLinear, refGapLinear int64,
	gapbar int, rowlo int, rowFirst bool,
) (Scoring, error) {
	s := Scoring{
		Match:         match,
		MMCostType:    mmcostType,
		MMPen:         mmpen,
		Snp:           snp,
		NPenType:      npenType,
		NPen:          npen,
		NCatPair:      ncatpair,
		MinConst:      minConst,
		MinLinear:     minLinear,
		FloorConst:    floorConst,
		FloorLinear:   floorLinear,
		NCeilConst:    nCeilConst,
		NCeilLinear:   nCeilLinear,
		ReadGapConst:  readGapConst,
		ReadGapLinear: readGapLinear,
		RefGapConst:   refGapConst,
		RefGapLinear:  refGapLinear,
		GapBar:        gapbar,
		RowLo:         rowlo,
		RowFirst:      rowFirst,
	}
	if err := s.validate(); err != nil {
		return Scoring{}, err
	}
	return s, nil
}

func (s Scoring) validate() error {
	if s.Match < 0 {
		return errors.E("align: match reward must be >= 0")
	}
	if s.ReadGapConst < 0 || s.ReadGapLinear < 0 {
		return errors.E("align: read-gap constants must be >= 0")
	}
	if s.RefGapConst < 0 || s.RefGapLinear < 0 {
		return errors.E("align: ref-gap constants must be >= 0")
	}
	if s.GapBar < 0 {
		return errors.E("align: gapbar must be >= 0")
	}
	return nil
}

// MustBwaSwLike is BwaSwLike without the impossible error return; the
// preset's constants are known-valid.
func MustBwaSwLike() Scoring {
	s, err := BwaSwLike()
	if err != nil {
		panic(err)
	}
	return s
}

// BwaSwLike returns the preset used throughout the calibration tests:
// match=1, mm=3, gap open/extend=(15,4) on both axes, gapbar=5,
// nCeil=(2, 0.1), minsc=(-3, -3).
func BwaSwLike() (Scoring, error) {
	return NewScoring(
		1,                  // match
		CostConstant, 3, 3, // mmcostType, mmpen, snp
		-3, -3, // minConst, minLinear
		0, 0, // floorConst, floorLinear
		2, 0.1, // nCeilConst, nCeilLinear
		CostConstant, 3, false, // npenType, npen, ncatpair
		11, 11, // readGapConst, refGapConst
		4, 4, // readGapLinear, refGapLinear
		5, -1, false, // gapbar, rowlo, rowFirst
	)
}

// ReadGapOpen is the cost of opening a gap in the read (i.e. a
// reference-consuming gap), const+linear.
func (s Scoring) ReadGapOpen() int64 { return s.ReadGapConst + s.ReadGapLinear }

// ReadGapExtend is the per-base extension cost of a read gap.
func (s Scoring) ReadGapExtend() int64 { return s.ReadGapLinear }

// RefGapOpen is the cost of opening a gap in the reference.
func (s Scoring) RefGapOpen() int64 { return s.RefGapConst + s.RefGapLinear }

// RefGapExtend is the per-base extension cost of a reference gap.
func (s Scoring) RefGapExtend() int64 { return s.RefGapLinear }

// MM returns the penalty for a mismatched base of quality q.
func (s Scoring) MM(q int64) int64 {
	return costFor(s.MMCostType, s.MMPen, q)
}

// N returns the penalty for an N (in the read) at quality q.
func (s Scoring) N(q int64) int64 {
	return costFor(s.NPenType, s.NPen, q)
}

func costFor(model CostModel, constPen int64, q int64) int64 {
	switch model {
	case CostQual:
		return clampQual(q)
	case CostRoundedQual:
		return qualRoundTable[clampQual(q)]
	default:
		return constPen
	}
}

func clampQual(q int64) int64 {
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return q
}

// MinScore is the floor minsc(L) = minConst + minLinear*L below which an
// alignment of a read of length L is unacceptable.
func (s Scoring) MinScore(rdlen int) int64 {
	return int64(math.Floor(s.MinConst + s.MinLinear*float64(rdlen)))
}

// Floor is the local-mode score floor used as floorsc during backtrace.
func (s Scoring) Floor(rdlen int) int64 {
	return int64(math.Floor(s.FloorConst + s.FloorLinear*float64(rdlen)))
}

// NCeil is the maximum number of Ns tolerated in a read of length L,
// floor(nCeilConst + nCeilLinear*L), saturating at 0.
func (s Scoring) NCeil(rdlen int) int64 {
	v := math.Floor(s.NCeilConst + s.NCeilLinear*float64(rdlen))
	if v < 0 {
		v = 0
	}
	return int64(v)
}

// Score returns the score contribution of aligning a read base against
// a reference base: +Match if they share a bit and neither is N,
// -N(q) if either is N, else -MM(q). readChar and refBits are IUPAC
// bitmasks (see Code.Bits); 0 denotes an N read base, and ibaseN (or 0)
// denotes an N/ambiguous reference base.
func (s Scoring) Score(readChar, refBits byte, q int64) int64 {
	if readChar == 0 || refBits == 0 || refBits == ibaseN {
		return -s.N(q)
	}
	if readChar&refBits != 0 {
		return s.Match
	}
	return -s.MM(q)
}

// MaxReadGaps returns the largest k such that an alignment of a
// perfectly-matching read of length rdlen, converted one base at a
// time into a read gap, can still score >= minsc after k-1 gap
// positions (i.e. k openings considered, k-1 returned). The first
// conversion subtracts the match bonus *and* the gap-open cost; later
// ones subtract match plus the extend cost. See DESIGN.md for why this
// asymmetric accounting (relative to MaxRefGaps) is intentional.
func (s Scoring) MaxReadGaps(minsc int64, rdlen int) int {
	sc := int64(rdlen) * s.Match
	first := true
	num := 0
	for sc >= minsc {
		sc -= s.Match
		if first {
			first = false
			sc -= s.ReadGapOpen()
		} else {
			sc -= s.ReadGapExtend()
		}
		num++
	}
	return num - 1
}

// MaxRefGaps is MaxReadGaps' reference-gap analogue. Unlike
// MaxReadGaps, it never subtracts the match bonus: a reference gap
// does not consume a read position, so converting a matched column
// into a ref-gap column costs only the gap penalty, not a forfeited
// match.
func (s Scoring) MaxRefGaps(minsc int64, rdlen int) int {
	sc := int64(rdlen) * s.Match
	first := true
	num := 0
	for sc >= minsc {
		if first {
			first = false
			sc -= s.RefGapOpen()
		} else {
			sc -= s.RefGapExtend()
		}
		num++
	}
	return num - 1
}

// NFilter returns true iff read passes the N filter: its count of
// CodeN positions does not exceed NCeil(len(read)).
func (s Scoring) NFilter(read []Code) bool {
	maxns := s.NCeil(len(read))
	var ns int64
	for _, c := range read {
		if c == CodeN {
			ns++
			if ns > maxns {
				return false
			}
		}
	}
	return true
}

// NFilterPair applies the N filter to a read pair. When s.NCatPair is
// true and both mates are present, the ceiling is applied to the
// concatenated length and, if exceeded, BOTH mates are rejected;
// otherwise each mate is filtered independently.
func (s Scoring) NFilterPair(rd1, rd2 []Code) (pass1, pass2 bool) {
	if rd1 != nil && rd2 != nil && s.NCatPair {
		maxns := s.NCeilConst + s.NCeilLinear*float64(len(rd1)+len(rd2))
		if maxns < 0 {
			maxns = 0
		}
		var ns float64
		for _, c := range rd1 {
			if c == CodeN {
				ns++
				if ns > maxns {
					return false, false
				}
			}
		}
		for _, c := range rd2 {
			if c == CodeN {
				ns++
				if ns > maxns {
					return false, false
				}
			}
		}
		return true, true
	}
	if rd1 != nil {
		pass1 = s.NFilter(rd1)
	}
	if rd2 != nil {
		pass2 = s.NFilter(rd2)
	}
	return pass1, pass2
}
