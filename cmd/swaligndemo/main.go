package main

/*
swaligndemo runs the striped affine-gap aligner core (package align) over
every read in a FASTQ file against one named sequence of a FASTA reference,
end to end. It is not a mapper: there's no seeding, no paired-end policy,
and no general SAM-writing pipeline — for each read with a solution cell it
logs one line, including fields of an illustrative sam.Record built
straight from the winning backtrace. Reads that fail, saturate, or find
no solution cell are only logged at debug level, or not at all.

Usage: swaligndemo -ref genome.fa -reads reads.fastq
*/

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"

	"github.com/gapflow/swalign/align"
	"github.com/gapflow/swalign/align/cohort"
	"github.com/gapflow/swalign/encoding/fasta"
	"github.com/gapflow/swalign/encoding/fastq"
)

var (
	refPath         = flag.String("ref", "", "FASTA reference path (required)")
	readsPath       = flag.String("reads", "", "FASTQ reads path (required)")
	seqName         = flag.String("seq", "", "Reference sequence name to align against; defaults to the first sequence in -ref")
	laneWidth       = flag.Int("width", 8, "SSE lane width: 8 or 16")
	mode            = flag.String("mode", "local", "Alignment mode: 'local' or 'end-to-end'")
	domains         = flag.Int("domains", 2, "Number of simulated NUMA domains sharing the cohort lock")
	starvationLimit = flag.Uint64("starvation-limit", 4, "CohortLock starvation limit")
	seed            = flag.Int64("seed", 1, "Base seed for per-domain backtrace RNGs")
	minAlignScore   = flag.Int64("min-score", 0, "Minimum alignment score to report a read as aligned")
)

func swaligndemoUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -ref genome.fa -reads reads.fastq\n", os.Args[0])
	flag.PrintDefaults()
}

// domainState is the per-NUMA-domain shared state a cohort.Lock
// guards: one RNG (math/rand.Rand is not itself safe for concurrent
// use) and one running Metrics accumulator per domain, so that workers
// pinned to the same domain don't bounce a dedicated lock's cache line
// between sockets on every single alignment the way one global mutex
// would.
type domainState struct {
	rng     *rand.Rand
	metrics align.Metrics
}

func main() {
	flag.Usage = swaligndemoUsage
	shutdown := grail.Init()
	defer shutdown()

	if *refPath == "" || *readsPath == "" {
		log.Fatalf("-ref and -reads are both required")
	}
	width := align.LaneWidth(*laneWidth)
	if width != align.LaneWidth8 && width != align.LaneWidth16 {
		log.Fatalf("-width must be 8 or 16, got %d", *laneWidth)
	}
	var fillMode align.Mode
	switch *mode {
	case "local":
		fillMode = align.ModeLocal
	case "end-to-end":
		fillMode = align.ModeEndToEnd
	default:
		log.Fatalf("-mode must be 'local' or 'end-to-end', got %q", *mode)
	}

	ctx := vcontext.Background()

	refFile, err := file.Open(ctx, *refPath)
	if err != nil {
		log.Fatalf("open %v: %v", *refPath, err)
	}
	fa, err := fasta.New(refFile.Reader(ctx))
	if err != nil {
		log.Fatalf("parse %v: %v", *refPath, err)
	}
	name := *seqName
	if name == "" {
		names := fa.SeqNames()
		if len(names) == 0 {
			log.Fatalf("%v contains no sequences", *refPath)
		}
		name = names[0]
	}
	refLen, err := fa.Len(name)
	if err != nil {
		log.Fatalf("sequence %q: %v", name, err)
	}
	refStr, err := fa.Get(name, 0, refLen)
	if err != nil {
		log.Fatalf("sequence %q: %v", name, err)
	}
	refWindow := align.EncodeQuery([]byte(refStr))

	readsFile, err := file.Open(ctx, *readsPath)
	if err != nil {
		log.Fatalf("open %v: %v", *readsPath, err)
	}
	scanner := fastq.NewScanner(readsFile.Reader(ctx), fastq.All)

	sc := align.MustBwaSwLike()

	lock, err := cohort.NewLock(*domains, *starvationLimit)
	if err != nil {
		log.Fatalf("cohort.NewLock: %v", err)
	}
	domainStates := make([]*domainState, *domains)
	for d := range domainStates {
		domainStates[d] = &domainState{rng: rand.New(rand.NewSource(*seed + int64(d)))}
	}

	var wg sync.WaitGroup
	readCh := make(chan fastq.Read, *domains)
	for d := 0; d < *domains; d++ {
		wg.Add(1)
		go func(domain int) {
			defer wg.Done()
			for read := range readCh {
				alignOne(read, domain, domainStates[domain], lock, refWindow, name, sc, width, fillMode)
			}
		}(d)
	}

	var read fastq.Read
	n := 0
	for scanner.Scan(&read) {
		readCh <- read
		n++
	}
	close(readCh)
	wg.Wait()
	if err := scanner.Err(); err != nil {
		log.Fatalf("scan %v: %v", *readsPath, err)
	}

	var total align.Metrics
	for _, ds := range domainStates {
		total.Merge(&ds.metrics, true)
	}
	log.Printf("swaligndemo: aligned %d reads against %q (len %d); dp=%d dpsucc=%d dpfail=%d dpsat=%d bt=%d btsucc=%d",
		n, name, refLen, total.DP, total.DPSucc, total.DPFail, total.DPSat, total.BT, total.BTSucc)
}

func alignOne(
	read fastq.Read,
	domain int,
	ds *domainState,
	lock *cohort.Lock,
	refWindow []align.Code,
	refName string,
	sc align.Scoring,
	width align.LaneWidth,
	fillMode align.Mode,
) {
	query := align.EncodeQuery([]byte(read.Seq))
	qual := []byte(read.Qual)
	if len(qual) != len(query) {
		qual = make([]byte, len(query))
		for i := range qual {
			qual[i] = 'I' // Phred 40, used when the FASTQ lacks a quality line.
		}
	}

	profile, err := align.BuildProfile(query, qual, sc, width)
	if err != nil {
		log.Debug.Printf("%s: build profile: %v", read.ID, err)
		return
	}

	var m align.Matrix
	if err := m.Init(len(query), len(refWindow), width.WPerV()); err != nil {
		log.Debug.Printf("%s: init matrix: %v", read.ID, err)
		return
	}

	minsc := *minAlignScore
	if minsc == 0 {
		minsc = sc.MinScore(len(query))
	}

	lock.Lock(domain)
	result, err := align.Fill(&m, profile, refWindow, fillMode, sc, minsc, &ds.metrics)
	if err != nil {
		lock.Unlock(domain)
		log.Debug.Printf("%s: fill: %v", read.ID, err)
		return
	}
	if result.Saturated {
		lock.Unlock(domain)
		log.Debug.Printf("%s: saturated at width %d, retry at 16 not implemented in this demo", read.ID, width)
		return
	}
	if !result.HasBest {
		lock.Unlock(domain)
		return
	}

	steps := align.Walk(&m, result.Best.Row, result.Best.Col, refWindow, query, qual, sc,
		-profile.Bias, sc.Floor(len(query)), fillMode == align.ModeLocal, ds.rng)
	ds.metrics.BT++
	if len(steps) > 0 {
		ds.metrics.BTSucc++
	} else {
		ds.metrics.BTFail++
	}
	lock.Unlock(domain)

	refGaps, readGaps := 0, 0
	for _, st := range steps {
		switch st.Move {
		case align.BtOallRefOpen, align.BtRfgapExtend:
			refGaps++
		case align.BtOallReadOpen, align.BtRdgapExtend:
			readGaps++
		}
	}
	// steps[len(steps)-1] is the last move the walk took before hitting
	// its terminus; its Col is the column that move left from, which is
	// an approximation of the alignment's left-most reference column:
	// a diagonal or read-gap move ends one column further left.
	startCol := result.Best.Col
	if len(steps) > 0 {
		startCol = steps[len(steps)-1].Col
	}

	rec := &sam.Record{
		Name:  read.ID,
		Pos:   startCol,
		MapQ:  255,
		Flags: 0,
	}
	rec.Seq = sam.NewSeq([]byte(read.Seq))
	rec.Qual = qual

	log.Printf("%s: domain=%d score=%d ref=%s pos=%d steps=%d refgaps=%d readgaps=%d record=%s",
		read.ID, domain, result.Best.Score, refName, rec.Pos, len(steps), refGaps, readGaps, rec.Name)
}
