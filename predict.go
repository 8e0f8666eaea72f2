package mpeg4

// blockPredictor is the intra prediction state one block leaves for its neighbours.
type blockPredictor struct {
	dc    int    // dequantised DC
	row   [7]int // quantised AC levels of the first row
	col   [7]int // quantised AC levels of the first column
	quant int
}

var predictorDefault = blockPredictor{dc: 1024}

// Neighbour of block n as {dx, dy, block} for A (left), B (above left) and C (above).
var predictorNeighbours = [6][3][3]int{
	{{-1, 0, 1}, {-1, -1, 3}, {0, -1, 2}},
	{{0, 0, 0}, {0, -1, 2}, {0, -1, 3}},
	{{-1, 0, 3}, {-1, 0, 1}, {0, 0, 0}},
	{{0, 0, 2}, {0, 0, 0}, {0, 0, 1}},
	{{-1, 0, 4}, {-1, -1, 4}, {0, -1, 4}},
	{{-1, 0, 5}, {-1, -1, 5}, {0, -1, 5}},
}

// available reports whether macroblock (mbx, mby) may be used for prediction: inside the frame and
// inside the current video packet.
func (d *Decoder) available(mbx, mby int) bool {
	if mbx < 0 || mby < 0 || mbx >= d.mbWidth || mby >= d.mbHeight {
		return false
	}

	return mby*d.mbWidth+mbx >= d.packetStart
}

func (d *Decoder) predictor(mbx, mby, n int) *blockPredictor {
	return &d.predictors[(mby*d.mbWidth+mbx)*6+n]
}

func (d *Decoder) neighbourPredictor(mbx, mby, n, which int) *blockPredictor {
	nb := predictorNeighbours[n][which]
	x, y := mbx+nb[0], mby+nb[1]
	if !d.available(x, y) {
		return &predictorDefault
	}

	return d.predictor(x, y, nb[2])
}

// resetPredictors restores the defaults for a macroblock that is not intra coded.
func (d *Decoder) resetPredictors(mbx, mby int) {
	base := (mby*d.mbWidth + mbx) * 6
	for i := 0; i < 6; i++ {
		d.predictors[base+i] = predictorDefault
	}
}

// decodeIntraBlock decodes block n of an intra macroblock into d.blockData, including DC and AC
// prediction, and stores the block's own predictor.
func (d *Decoder) decodeIntraBlock(mbx, mby, n, q int, coded, acPred, dcVlc bool) error {
	block := d.blockData
	for i := range block {
		block[i] = 0
	}

	i := 0
	if dcVlc {
		dc, ok := d.tables.readIntraDC(d.buf, n < 4)
		if !ok {
			return invalidf("intra dc at mb %d,%d block %d", mbx, mby, n)
		}
		block[0] = dc
		i = 1
	}

	return d.reconstructIntraBlock(mbx, mby, n, q, i, coded, acPred)
}

// reconstructIntraBlock reads the AC coefficients of block n from scan position i, block[0] holding
// the differential DC when i is 1, and applies prediction and inverse quantisation.
func (d *Decoder) reconstructIntraBlock(mbx, mby, n, q, i int, coded, acPred bool) error {
	block := d.blockData

	luma := n < 4
	scaler := dcScaler(q, luma)

	a := d.neighbourPredictor(mbx, mby, n, 0)
	b := d.neighbourPredictor(mbx, mby, n, 1)
	c := d.neighbourPredictor(mbx, mby, n, 2)

	pred, vertical := a, false
	if abs(a.dc-b.dc) < abs(b.dc-c.dc) {
		pred, vertical = c, true
	}

	scan := videoZigZag
	switch {
	case d.vop.AlternateVerticalScan:
		scan = videoAlternateVerticalScan
	case acPred && vertical:
		scan = videoAlternateHorizontalScan
	case acPred:
		scan = videoAlternateVerticalScan
	}

	if coded {
		if err := d.readCoefficients(block, scan, i, true); err != nil {
			return err
		}
	}

	dc := (block[0] + (pred.dc+scaler>>1)/scaler) * scaler
	if dc > 4095 {
		return invalidf("intra dc %d out of range", dc)
	}
	if dc < 0 {
		dc = 0
	} else if dc > 2047 {
		dc = 2047
	}

	if acPred {
		if vertical {
			for k := 1; k < 8; k++ {
				block[k] += scaleAC(pred.row[k-1], pred.quant, q)
			}
		} else {
			for k := 1; k < 8; k++ {
				block[k<<3] += scaleAC(pred.col[k-1], pred.quant, q)
			}
		}
	}

	own := d.predictor(mbx, mby, n)
	own.dc = dc
	own.quant = q
	for k := 1; k < 8; k++ {
		own.row[k-1] = block[k]
		own.col[k-1] = block[k<<3]
	}

	if d.vol.QuantType == QuantMPEG {
		dequantMPEG(block, q, &d.vol.IntraMatrix, true)
	} else {
		dequantH263(block, q, true)
	}
	block[0] = dc

	return nil
}

// readCoefficients reads run/level events into block starting at scan position i.
func (d *Decoder) readCoefficients(block []int, scan []byte, i int, intra bool) error {
	short := d.vol != nil && d.vol.ShortVideoHeader

	for {
		var last, run, level int
		var ok bool
		if short {
			last, run, level, ok = d.tables.readH263Event(d.buf)
		} else {
			last, run, level, ok = d.tables.readACEvent(d.buf, intra)
		}
		if !ok {
			return invalidf("ac coefficient")
		}

		i += run
		if i > 63 {
			return invalidf("run beyond block end")
		}
		block[scan[i]] = level
		i++

		if last != 0 {
			return nil
		}
	}
}

// decodeInterBlock reads and dequantises the residual of an inter block into d.blockData.
func (d *Decoder) decodeInterBlock(q int) error {
	block := d.blockData
	for i := range block {
		block[i] = 0
	}

	scan := videoZigZag
	if d.vop.AlternateVerticalScan {
		scan = videoAlternateVerticalScan
	}

	if err := d.readCoefficients(block, scan, 0, false); err != nil {
		return err
	}

	if d.vol.QuantType == QuantMPEG {
		dequantMPEG(block, q, &d.vol.InterMatrix, false)
	} else {
		dequantH263(block, q, false)
	}

	return nil
}

// scaleAC rescales a predicted AC level coded at quant qp to quant q.
func scaleAC(v, qp, q int) int {
	if v == 0 || qp == q || qp == 0 {
		return v
	}

	v *= qp
	if v > 0 {
		return (v + q>>1) / q
	}

	return (v - q>>1) / q
}
