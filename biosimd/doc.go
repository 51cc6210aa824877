// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides byte-array cleanup helpers for raw sequence
// data. Trimmed down to the one operation align.EncodeQuery actually
// calls, CleanASCIISeqInplace, rather than the full ASCII/2-bit/4-bit
// pack-unpack-count-revcomp surface a general .bam/.fa toolkit carries.
package biosimd
