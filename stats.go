//
// Prediction quality bookkeeping for the temporal memory
//

package htm

import (
	"fmt"

	"github.com/cznic/mathutil"
	"github.com/htm-community/htmcore/utils"
	"github.com/skelterjohn/go.matrix"
	"github.com/zacg/floats"
)

type TmStats struct {
	NInfersSinceReset       int
	NPredictions            int
	PredictionScoreTotal    float64
	FalseNegativeScoreTotal float64
	FalsePositiveScoreTotal float64
	PctExtraTotal           float64
	PctMissingTotal         float64
	TotalMissing            float64
	TotalExtra              float64

	CurPredictionScore    float64
	CurFalseNegativeScore float64
	CurFalsePositiveScore float64
	CurMissing            float64
	CurExtra              float64
}

func (s *TmStats) ToString() string {
	result := "Stats: \n"

	result += fmt.Sprintf("nInferSinceReset %v \n", s.NInfersSinceReset)
	result += fmt.Sprintf("nPredictions %v \n", s.NPredictions)
	result += fmt.Sprintf("PredictionScoreTotal %v \n", s.PredictionScoreTotal)
	result += fmt.Sprintf("FalseNegativeScoreTotal %v \n", s.FalseNegativeScoreTotal)
	result += fmt.Sprintf("FalsePositiveScoreTotal %v \n", s.FalsePositiveScoreTotal)
	result += fmt.Sprintf("PctExtraTotal %v \n", s.PctExtraTotal)
	result += fmt.Sprintf("PctMissingTotal %v \n", s.PctMissingTotal)
	result += fmt.Sprintf("TotalMissing %v \n", s.TotalMissing)
	result += fmt.Sprintf("TotalExtra %v \n", s.TotalExtra)
	result += fmt.Sprintf("CurPredictionScore %v \n", s.CurPredictionScore)
	result += fmt.Sprintf("CurFalseNegativeScore %v \n", s.CurFalseNegativeScore)
	result += fmt.Sprintf("CurFalsePositiveScore %v \n", s.CurFalsePositiveScore)
	result += fmt.Sprintf("CurMissing %v \n", s.CurMissing)
	result += fmt.Sprintf("CurExtra %v \n", s.CurExtra)

	return result
}

type confidence struct {
	PredictionScore         float64
	PositivePredictionScore float64
	NegativePredictionScore float64
}

/*
 Accumulates prediction quality metrics for a temporal memory instance.
Call Update after every compute with the bottom-up pattern that was just
presented; the step is scored against the predictions the memory carried
into that compute.
*/
type TmStatsCollector struct {
	numColumns     int
	cellsPerColumn int

	//Number of initial steps of each sequence excluded from the
	//accumulated totals. 1 means scoring starts with the second element.
	BurnIn int
	//Collect the per-cell confidence histogram in addition to the
	//cheap step counters
	CollectSequenceStats bool

	Stats TmStats

	//Column-normalized confidence per cell, accumulated over all steps
	//where the cell correctly predicted bottom-up activity
	ConfHistogram *matrix.DenseMatrix
}

func NewTmStatsCollector(tm *TemporalMemory, burnIn int) *TmStatsCollector {
	sc := new(TmStatsCollector)
	sc.numColumns = tm.NumberOfColumns()
	sc.cellsPerColumn = tm.NumberOfCells() / tm.NumberOfColumns()
	sc.BurnIn = burnIn
	sc.ConfHistogram = matrix.Zeros(sc.numColumns, sc.cellsPerColumn)
	return sc
}

/*
 Produces goodness-of-match scores for a set of input patterns against a
prediction. Returns a global count of extra and missing columns plus a
confidence score per pattern.

Extras are predicted columns absent from the union of the patterns;
missing are pattern columns the prediction did not cover. Each pattern's
score is the positive minus the negative confidence mass, scaled so the
two sum to 1. A perfect prediction scores 1, a fully wrong one -1.
*/
func (sc *TmStatsCollector) checkPrediction(patternNZs [][]int, predictedColumns []int,
	colConfidence []float64) (int, int, []confidence) {

	// Union of all the expected patterns
	var orAll []int
	for _, row := range patternNZs {
		for _, col := range row {
			if !utils.ContainsInt(col, orAll) {
				orAll = append(orAll, col)
			}
		}
	}

	totalExtras := 0
	totalMissing := 0

	for _, val := range predictedColumns {
		if !utils.ContainsInt(val, orAll) {
			totalExtras++
		}
	}
	for _, val := range orAll {
		if !utils.ContainsIntSorted(val, predictedColumns) {
			totalMissing++
		}
	}

	var confidences []confidence

	for i := 0; i < len(patternNZs); i++ {
		// Confidence mass inside this pattern's columns
		positivePredictionSum := floats.Sum(floats.SubSet(colConfidence, patternNZs[i]))
		positiveColumnCount := len(patternNZs[i])

		totalPredictionSum := floats.Sum(colConfidence)
		totalColumnCount := len(colConfidence)

		negativePredictionSum := totalPredictionSum - positivePredictionSum
		negativeColumnCount := totalColumnCount - positiveColumnCount

		positivePredictionScore := 0.0
		if positiveColumnCount != 0 {
			positivePredictionScore = positivePredictionSum
		}
		negativePredictionScore := 0.0
		if negativeColumnCount != 0 {
			negativePredictionScore = negativePredictionSum
		}

		// Scale the two scores so that they sum to 1.0
		currentSum := negativePredictionScore + positivePredictionScore
		if currentSum > 0 {
			positivePredictionScore *= 1.0 / currentSum
			negativePredictionScore *= 1.0 / currentSum
		}

		predictionScore := positivePredictionScore - negativePredictionScore
		confidences = append(confidences,
			confidence{predictionScore, positivePredictionScore, negativePredictionScore})
	}

	return totalExtras, totalMissing, confidences
}

//Per-column confidence of the prediction the memory carried into its
//most recent compute, normalized to sum to 1
func (sc *TmStatsCollector) colConfidence(tm *TemporalMemory) []float64 {
	conf := make([]float64, sc.numColumns)
	for _, cell := range tm.LastPredictiveCells() {
		conf[cell/sc.cellsPerColumn]++
	}
	if sum := floats.Sum(conf); sum > 0 {
		floats.DivConst(sum, conf)
	}
	return conf
}

/*
 Scores the bottom-up pattern that was just presented against the
predictions the memory carried into that compute, and folds the result
into the running totals. Steps inside the burn-in window update only the
Cur* fields.
*/
func (sc *TmStatsCollector) Update(tm *TemporalMemory, bottomUpNZ []int) {
	sc.Stats.NInfersSinceReset++

	colConfidence := sc.colConfidence(tm)
	predicted := tm.LastPredictedColumns()

	numExtra, numMissing, confidences := sc.checkPrediction([][]int{bottomUpNZ}, predicted, colConfidence)
	predictionScore := confidences[0].PredictionScore
	positivePredictionScore := confidences[0].PositivePredictionScore
	negativePredictionScore := confidences[0].NegativePredictionScore

	sc.Stats.CurPredictionScore = predictionScore
	sc.Stats.CurFalseNegativeScore = 1.0 - positivePredictionScore
	sc.Stats.CurFalsePositiveScore = negativePredictionScore
	sc.Stats.CurMissing = float64(numMissing)
	sc.Stats.CurExtra = float64(numExtra)

	if sc.Stats.NInfersSinceReset <= sc.BurnIn {
		return
	}

	sc.Stats.NPredictions++
	numExpected := mathutil.Max(1, len(bottomUpNZ))

	sc.Stats.TotalMissing += float64(numMissing)
	sc.Stats.TotalExtra += float64(numExtra)
	sc.Stats.PctExtraTotal += 100.0 * float64(numExtra) / float64(numExpected)
	sc.Stats.PctMissingTotal += 100.0 * float64(numMissing) / float64(numExpected)
	sc.Stats.PredictionScoreTotal += predictionScore
	sc.Stats.FalseNegativeScoreTotal += 1.0 - positivePredictionScore
	sc.Stats.FalsePositiveScoreTotal += negativePredictionScore

	if sc.CollectSequenceStats {
		sc.updateConfHistogram(tm)
	}
}

//Adds column-normalized confidence scores for every cell that correctly
//predicted current bottom-up activity to the histogram
func (sc *TmStatsCollector) updateConfHistogram(tm *TemporalMemory) {
	cc := matrix.Zeros(sc.numColumns, sc.cellsPerColumn)

	active := tm.ActiveCells()
	for _, cell := range tm.LastPredictiveCells() {
		if utils.ContainsIntSorted(cell, active) {
			cc.Set(cell/sc.cellsPerColumn, cell%sc.cellsPerColumn, 1.0)
		}
	}

	for r := 0; r < cc.Rows(); r++ {
		count := 0.0
		for c := 0; c < cc.Cols(); c++ {
			if cc.Get(r, c) > 0 {
				count++
			}
		}
		if count == 0 {
			continue
		}
		for c := 0; c < cc.Cols(); c++ {
			cc.Set(r, c, cc.Get(r, c)/count)
		}
	}

	sc.ConfHistogram.Add(cc)
}

//Average prediction score over all scored steps, 0 before any
func (sc *TmStatsCollector) PredictionScoreAvg() float64 {
	if sc.Stats.NPredictions == 0 {
		return 0.0
	}
	return sc.Stats.PredictionScoreTotal / float64(sc.Stats.NPredictions)
}

/*
 Starts a new sequence: the burn-in counter and the per-step fields are
cleared, the accumulated totals survive. Call together with the temporal
memory's own Reset.
*/
func (sc *TmStatsCollector) ResetSequence() {
	sc.Stats.NInfersSinceReset = 0
	sc.Stats.CurPredictionScore = 0.0
	sc.Stats.CurFalseNegativeScore = 0.0
	sc.Stats.CurFalsePositiveScore = 0.0
	sc.Stats.CurMissing = 0.0
	sc.Stats.CurExtra = 0.0
}

//Clears everything including the accumulated totals and the histogram
func (sc *TmStatsCollector) ResetStats() {
	sc.Stats = TmStats{}
	sc.ConfHistogram = matrix.Zeros(sc.numColumns, sc.cellsPerColumn)
}
