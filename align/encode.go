// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package align

import "github.com/gapflow/swalign/biosimd"

// cleanedToCodeTable maps the five bytes biosimd.CleanASCIISeqInplace
// ever produces ('A','C','G','T','N') to a Code; every other entry is
// unreachable once a slice has been through CleanASCIISeqInplace.
var cleanedToCodeTable = [256]Code{}

func init() {
	for i := range cleanedToCodeTable {
		cleanedToCodeTable[i] = CodeN
	}
	cleanedToCodeTable['A'] = CodeA
	cleanedToCodeTable['C'] = CodeC
	cleanedToCodeTable['G'] = CodeG
	cleanedToCodeTable['T'] = CodeT
}

// EncodeQuery converts raw ASCII sequence bytes into Codes. It first
// runs biosimd.CleanASCIISeqInplace over a copy of seq, which
// capitalizes a/c/g/t and folds anything else (including lowercase n,
// IUPAC ambiguity codes, and gap characters) down to 'N', then maps
// the five canonical bytes to Codes. Used on both the read and the
// reference window, since both are indexed the same way by Profile
// and Fill.
func EncodeQuery(seq []byte) []Code {
	cleaned := make([]byte, len(seq))
	copy(cleaned, seq)
	biosimd.CleanASCIISeqInplace(cleaned)

	out := make([]Code, len(cleaned))
	for i, b := range cleaned {
		out[i] = cleanedToCodeTable[b]
	}
	return out
}
