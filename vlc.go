package mpeg4

import (
	"sync"
)

// Macroblock types as coded in MCBPC.
const (
	mbInter    = 0
	mbInterQ   = 1
	mbInter4V  = 2
	mbIntra    = 3
	mbIntraQ   = 4
	mbStuffing = 7
)

// B macroblock types.
const (
	mbDirect = iota
	mbInterpolate
	mbBackward
	mbForward
)

const acEscape = 0x7fff

type vlcTables struct {
	mcbpcIntra []vlc
	mcbpcInter []vlc
	cbpy       []vlc
	mvd        []vlc
	dcLuma     []vlc
	dcChroma   []vlc
	acIntra    []vlc
	acInter    []vlc
	bType      []vlc

	// [intra][last][run] and [intra][last][level]
	maxLevel [2][2][64]int
	maxRun   [2][2][64]int
}

var (
	vlcOnce sync.Once
	vlcSet  *vlcTables
)

// loadVlcTables returns the shared decoding tables, building them on first use.
func loadVlcTables() *vlcTables {
	vlcOnce.Do(func() {
		vlcSet = buildVlcTables()
	})

	return vlcSet
}

func buildVlcTables() *vlcTables {
	t := &vlcTables{}

	codes := make([]vlcCode, 0, len(mcbpcIntraCodes))
	for i, c := range mcbpcIntraCodes {
		v := int16(mbStuffing << 2)
		if i < 8 {
			v = int16((mbIntra+i/4)<<2 | i&3)
		}
		codes = append(codes, vlcCode{c[0], int(c[1]), v})
	}
	t.mcbpcIntra = newVlcTable(codes)

	codes = codes[:0]
	for i, c := range mcbpcInterCodes {
		v := int16(mbStuffing << 2)
		if i < 20 {
			v = int16((i/4)<<2 | i&3)
		}
		codes = append(codes, vlcCode{c[0], int(c[1]), v})
	}
	t.mcbpcInter = newVlcTable(codes)

	t.cbpy = newVlcTable(fromPairs(cbpyCodes))
	t.mvd = newVlcTable(fromPairs(mvdCodes))
	t.dcLuma = newVlcTable(fromPairs(dcLumaCodes))
	t.dcChroma = newVlcTable(fromPairs(dcChromaCodes))
	t.bType = newVlcTable(fromPairs(bTypeCodes))

	t.acIntra = buildAcTable(acIntraEvents)
	t.acInter = buildAcTable(acInterEvents)

	for intra, events := range [][][3]int{acInterEvents, acIntraEvents} {
		for _, e := range events {
			last, run, level := e[0], e[1], e[2]
			if level > t.maxLevel[intra][last][run] {
				t.maxLevel[intra][last][run] = level
			}
			if run > t.maxRun[intra][last][level] {
				t.maxRun[intra][last][level] = run
			}
		}
	}

	return t
}

func fromPairs(pairs [][2]uint32) []vlcCode {
	codes := make([]vlcCode, len(pairs))
	for i, p := range pairs {
		codes[i] = vlcCode{p[0], int(p[1]), int16(i)}
	}

	return codes
}

func buildAcTable(events [][3]int) []vlc {
	codes := make([]vlcCode, 0, len(acCodes)+1)
	for i, c := range acCodes {
		e := events[i]
		codes = append(codes, vlcCode{c[1], int(c[0]), int16(e[0]<<12 | e[1]<<6 | e[2])})
	}
	codes = append(codes, vlcCode{0x3, 7, acEscape})

	return newVlcTable(codes)
}

// readMCBPC returns the macroblock type and chroma coded block pattern.
// The type is mbStuffing for a stuffing code.
func (t *vlcTables) readMCBPC(b *Buffer, intraVop bool) (mbType, cbpc int, ok bool) {
	table := t.mcbpcInter
	if intraVop {
		table = t.mcbpcIntra
	}

	v, ok := b.readVlcOk(table)

	return v >> 2, v & 3, ok
}

// readCBPY returns the luma coded block pattern, bit 3 is block 0.
func (t *vlcTables) readCBPY(b *Buffer, intra bool) (int, bool) {
	v, ok := b.readVlcOk(t.cbpy)
	if !intra {
		v = 15 - v
	}

	return v, ok
}

// readMVD returns the signed motion vector code.
func (t *vlcTables) readMVD(b *Buffer) (int, bool) {
	v, ok := b.readVlcOk(t.mvd)
	if !ok {
		return 0, false
	}

	if v != 0 && b.read1() != 0 {
		v = -v
	}

	return v, true
}

// readIntraDC returns the differential DC of an intra block.
func (t *vlcTables) readIntraDC(b *Buffer, luma bool) (int, bool) {
	table := t.dcChroma
	if luma {
		table = t.dcLuma
	}

	size, ok := b.readVlcOk(table)
	if !ok {
		return 0, false
	}

	if size == 0 {
		return 0, true
	}

	code := b.read(size)
	if code>>(size-1) == 0 {
		code -= (1 << size) - 1
	}

	if size > 8 {
		b.skip(1) // marker
	}

	return code, !b.overrun
}

// readACEvent decodes one (last, run, level) event including the three escape modes.
func (t *vlcTables) readACEvent(b *Buffer, intra bool) (last, run, level int, ok bool) {
	table := t.acInter
	idx := 0
	if intra {
		table = t.acIntra
		idx = 1
	}

	v, ok := b.readVlcOk(table)
	if !ok {
		return 0, 0, 0, false
	}

	if v != acEscape {
		last, run, level = v>>12, (v>>6)&63, v&63
		if b.read1() != 0 {
			level = -level
		}

		return last, run, level, !b.overrun
	}

	switch {
	case b.read1() == 0:
		v, ok = b.readVlcOk(table)
		if !ok || v == acEscape {
			return 0, 0, 0, false
		}
		last, run, level = v>>12, (v>>6)&63, v&63
		level += t.maxLevel[idx][last][run]
	case b.read1() == 0:
		v, ok = b.readVlcOk(table)
		if !ok || v == acEscape {
			return 0, 0, 0, false
		}
		last, run, level = v>>12, (v>>6)&63, v&63
		run += t.maxRun[idx][last][level] + 1
	default:
		last = b.read1()
		run = b.read(6)
		b.skip(1) // marker
		level = b.read(12)
		if level >= 2048 {
			level -= 4096
		}
		b.skip(1) // marker

		if level == 0 {
			return 0, 0, 0, false
		}

		return last, run, level, !b.overrun
	}

	if b.read1() != 0 {
		level = -level
	}

	return last, run, level, !b.overrun
}

// readBType returns the B macroblock type.
func (t *vlcTables) readBType(b *Buffer) (int, bool) {
	return b.readVlcOk(t.bType)
}

// readH263Event decodes one (last, run, level) event of the inter table with the H.263 escape:
// last, a 6 bit run and an 8 bit signed level.
func (t *vlcTables) readH263Event(b *Buffer) (last, run, level int, ok bool) {
	v, ok := b.readVlcOk(t.acInter)
	if !ok {
		return 0, 0, 0, false
	}

	if v != acEscape {
		last, run, level = v>>12, (v>>6)&63, v&63
		if b.read1() != 0 {
			level = -level
		}

		return last, run, level, !b.overrun
	}

	last = b.read1()
	run = b.read(6)
	level = b.read(8)
	if level == 0 || level == 128 {
		return 0, 0, 0, false
	}
	if level > 128 {
		level -= 256
	}

	return last, run, level, !b.overrun
}

// readTrajectory decodes one sprite trajectory component: a length in unary (zeros ended by a
// one, at most 11) followed by that many bits, negative when the first of them is zero.
func readTrajectory(b *Buffer) (int, bool) {
	length := 0
	for b.read1() == 0 {
		length++
		if length >= 12 || b.overrun {
			return 0, false
		}
	}

	if length == 0 {
		return 0, true
	}

	code := b.read(length)
	if code>>(length-1) == 0 {
		code -= (1 << length) - 1
	}

	return code, !b.overrun
}

var mcbpcIntraCodes = [][2]uint32{
	{1, 1}, {1, 3}, {2, 3}, {3, 3},
	{1, 4}, {1, 6}, {2, 6}, {3, 6},
	{1, 9},
}

// Ordered by type (inter, interQ, inter4V, intra, intraQ) then cbpc, stuffing last.
var mcbpcInterCodes = [][2]uint32{
	{1, 1}, {3, 4}, {2, 4}, {5, 6},
	{3, 3}, {7, 7}, {6, 7}, {5, 9},
	{2, 3}, {5, 7}, {4, 7}, {5, 8},
	{3, 5}, {4, 8}, {3, 8}, {3, 7},
	{4, 6}, {4, 9}, {3, 9}, {2, 9},
	{1, 9},
}

// Indexed by the intra pattern, inter patterns are 15 minus the value.
var cbpyCodes = [][2]uint32{
	{3, 4}, {5, 5}, {4, 5}, {9, 4},
	{3, 5}, {7, 4}, {2, 6}, {11, 4},
	{2, 5}, {3, 6}, {5, 4}, {10, 4},
	{4, 4}, {8, 4}, {6, 4}, {3, 2},
}

var mvdCodes = [][2]uint32{
	{1, 1}, {1, 2}, {1, 3}, {1, 4}, {3, 6}, {5, 7}, {4, 7}, {3, 7},
	{11, 9}, {10, 9}, {9, 9}, {17, 10}, {16, 10}, {15, 10}, {14, 10}, {13, 10},
	{12, 10}, {11, 10}, {10, 10}, {9, 10}, {8, 10}, {7, 10}, {6, 10}, {5, 10},
	{4, 10}, {7, 11}, {6, 11}, {5, 11}, {4, 11}, {3, 11}, {2, 11}, {3, 12},
	{2, 12},
}

var dcLumaCodes = [][2]uint32{
	{3, 3}, {3, 2}, {2, 2}, {2, 3}, {1, 3}, {1, 4}, {1, 5},
	{1, 6}, {1, 7}, {1, 8}, {1, 9}, {1, 10}, {1, 11},
}

var dcChromaCodes = [][2]uint32{
	{3, 2}, {2, 2}, {1, 2}, {1, 3}, {1, 4}, {1, 5}, {1, 6},
	{1, 7}, {1, 8}, {1, 9}, {1, 10}, {1, 11}, {1, 12},
}

var bTypeCodes = [][2]uint32{
	{1, 1}, {1, 2}, {1, 3}, {1, 4},
}

// TCOEF codewords as {length, code}, shared by the intra and inter event tables.
var acCodes = [][2]uint32{
	{2, 0x2}, {4, 0xf}, {6, 0x15}, {7, 0x17}, {8, 0x1f}, {9, 0x25}, {9, 0x24}, {10, 0x21},
	{10, 0x20}, {11, 0x7}, {11, 0x6}, {11, 0x20}, {3, 0x6}, {6, 0x14}, {8, 0x1e}, {10, 0xf},
	{11, 0x21}, {12, 0x50}, {4, 0xe}, {8, 0x1d}, {10, 0xe}, {12, 0x51}, {5, 0xd}, {9, 0x23},
	{10, 0xd}, {5, 0xc}, {9, 0x22}, {12, 0x52}, {5, 0xb}, {10, 0xc}, {12, 0x53}, {6, 0x13},
	{10, 0xb}, {12, 0x54}, {6, 0x12}, {10, 0xa}, {6, 0x11}, {10, 0x9}, {6, 0x10}, {10, 0x8},
	{7, 0x16}, {12, 0x55}, {7, 0x15}, {7, 0x14}, {8, 0x1c}, {8, 0x1b}, {9, 0x21}, {9, 0x20},
	{9, 0x1f}, {9, 0x1e}, {9, 0x1d}, {9, 0x1c}, {9, 0x1b}, {9, 0x1a}, {11, 0x22}, {11, 0x23},
	{12, 0x56}, {12, 0x57}, {4, 0x7}, {9, 0x19}, {11, 0x5}, {6, 0xf}, {11, 0x4}, {6, 0xe},
	{6, 0xd}, {6, 0xc}, {7, 0x13}, {7, 0x12}, {7, 0x11}, {7, 0x10}, {8, 0x1a}, {8, 0x19},
	{8, 0x18}, {8, 0x17}, {8, 0x16}, {8, 0x15}, {8, 0x14}, {8, 0x13}, {9, 0x18}, {9, 0x17},
	{9, 0x16}, {9, 0x15}, {9, 0x14}, {9, 0x13}, {9, 0x12}, {9, 0x11}, {10, 0x7}, {10, 0x6},
	{10, 0x5}, {10, 0x4}, {11, 0x24}, {11, 0x25}, {11, 0x26}, {11, 0x27}, {12, 0x58}, {12, 0x59},
	{12, 0x5a}, {12, 0x5b}, {12, 0x5c}, {12, 0x5d}, {12, 0x5e}, {12, 0x5f},
}

// {last, run, level} per acCodes entry.
var acInterEvents = interEvents()

var acIntraEvents = [][3]int{
	{0, 0, 1}, {0, 0, 3}, {0, 0, 6}, {0, 0, 9}, {0, 0, 10}, {0, 0, 13}, {0, 0, 14}, {0, 0, 17},
	{0, 0, 18}, {0, 0, 21}, {0, 0, 22}, {0, 0, 23}, {0, 0, 2}, {0, 1, 2}, {0, 0, 11}, {0, 0, 19},
	{0, 0, 24}, {0, 0, 25}, {0, 1, 1}, {0, 0, 12}, {0, 0, 20}, {0, 0, 26}, {0, 0, 4}, {0, 0, 15},
	{0, 1, 7}, {0, 0, 5}, {0, 4, 2}, {0, 0, 27}, {0, 2, 1}, {0, 2, 4}, {0, 1, 9}, {0, 0, 7},
	{0, 3, 4}, {0, 6, 3}, {0, 0, 8}, {0, 4, 3}, {0, 3, 1}, {0, 8, 2}, {0, 4, 1}, {0, 5, 3},
	{0, 1, 3}, {0, 1, 10}, {0, 2, 2}, {0, 7, 1}, {0, 1, 4}, {0, 3, 2}, {0, 0, 16}, {0, 1, 5},
	{0, 1, 6}, {0, 2, 3}, {0, 3, 3}, {0, 5, 2}, {0, 6, 2}, {0, 7, 2}, {0, 1, 8}, {0, 9, 2},
	{0, 2, 5}, {0, 7, 3}, {1, 0, 1}, {0, 11, 1}, {1, 0, 6}, {1, 1, 1}, {1, 0, 7}, {1, 2, 1},
	{0, 5, 1}, {1, 0, 2}, {1, 5, 1}, {0, 6, 1}, {1, 3, 1}, {1, 4, 1}, {1, 9, 1}, {0, 8, 1},
	{0, 9, 1}, {0, 10, 1}, {1, 0, 3}, {1, 6, 1}, {1, 7, 1}, {1, 8, 1}, {0, 12, 1}, {1, 0, 4},
	{1, 1, 2}, {1, 10, 1}, {1, 11, 1}, {1, 12, 1}, {1, 13, 1}, {1, 14, 1}, {0, 13, 1}, {1, 0, 5},
	{1, 1, 3}, {1, 2, 2}, {1, 3, 2}, {1, 4, 2}, {1, 15, 1}, {1, 16, 1}, {0, 14, 1}, {1, 0, 8},
	{1, 5, 2}, {1, 6, 2}, {1, 17, 1}, {1, 18, 1}, {1, 19, 1}, {1, 20, 1},
}

// interEvents lists the inter events in codeword order: for each (last, run) all levels up to the
// maximum, runs ascending.
func interEvents() [][3]int {
	maxLevels := [2][]int{
		{12, 6, 4, 3, 3, 3, 3, 2, 2, 2, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{3, 2, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	}

	events := make([][3]int, 0, 102)
	for last, levels := range maxLevels {
		for run, n := range levels {
			for level := 1; level <= n; level++ {
				events = append(events, [3]int{last, run, level})
			}
		}
	}

	return events
}
