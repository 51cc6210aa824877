// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package align implements a striped, affine-gap Smith-Waterman/
// Needleman-Wunsch aligner over the 5-letter {A,C,G,T,N} DNA alphabet.
//
// The pieces are, in dependency order: Scoring (the scoring scheme),
// Profile (a per-query striped cost table), Matrix (the packed E/F/H/TMP
// DP matrix with its per-cell backtrace mask), Fill (the DP recurrence),
// and AnalyzeCell/Walk (the randomized backtrace). None of this package
// is thread-safe across a single Matrix/Profile/rand.Rand; callers give
// each goroutine its own instances, mirroring how biosimd operates on
// caller-owned byte slices rather than shared state.
package align
