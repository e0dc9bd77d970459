package htm

import (
	"fmt"

	"github.com/cznic/mathutil"
	"github.com/htm-community/htmcore/utils"
	"github.com/zacg/ints"
)

/*
 Cheap column predictors used as baselines when judging how much the
temporal memory's predictions are actually worth.

(n = half the number of average input columns on)
"random" - predict n random columns
"zeroth" - predict the n most common columns learned from the input
"last" - predict the last input
"all" - predict all columns
"lots" - predict the 2n most common columns learned from the input

Both "random" and "all" should give a prediction score near zero.
*/

type PredictorMethod int

const (
	PredictRandom PredictorMethod = 1
	PredictZeroth PredictorMethod = 2
	PredictLast   PredictorMethod = 3
	PredictAll    PredictorMethod = 4
	PredictLots   PredictorMethod = 5
)

type BaselinePredictorState struct {
	ActiveState        []bool
	ActiveStateLast    []bool
	PredictedState     []bool
	PredictedStateLast []bool
	Confidence         []float64
	ConfidenceLast     []float64
}

type BaselinePredictor struct {
	NumOfCols     int
	Methods       []PredictorMethod
	Verbosity     int
	InternalStats map[PredictorMethod]*TmStats
	State         map[PredictorMethod]*BaselinePredictorState

	// Number of times each column has been active during learning
	ColumnCount []int

	// Running average of input density
	AverageDensity float64

	rng *Random
}

func NewBaselinePredictor(numberOfCols int, methods []PredictorMethod, seed int64) *BaselinePredictor {
	bp := new(BaselinePredictor)
	bp.NumOfCols = numberOfCols
	bp.Methods = methods
	bp.InternalStats = make(map[PredictorMethod]*TmStats)
	bp.State = make(map[PredictorMethod]*BaselinePredictorState)

	for _, method := range methods {
		bps := new(BaselinePredictorState)
		bps.ActiveState = make([]bool, numberOfCols)
		bps.ActiveStateLast = make([]bool, numberOfCols)
		bps.Confidence = make([]float64, numberOfCols)
		bps.ConfidenceLast = make([]float64, numberOfCols)
		bps.PredictedState = make([]bool, numberOfCols)
		bps.PredictedStateLast = make([]bool, numberOfCols)
		bp.State[method] = bps

		bp.InternalStats[method] = new(TmStats)
	}

	bp.ColumnCount = make([]int, numberOfCols)
	bp.AverageDensity = 0.05
	bp.rng = NewRandom(seed)

	return bp
}

//The most recent prediction made by the given method
func (bp *BaselinePredictor) PredictedColumns(method PredictorMethod) []int {
	state, ok := bp.State[method]
	if !ok {
		panic(fmt.Sprintf("baseline predictor: method %v was not configured", method))
	}
	return utils.OnIndices(state.PredictedState)
}

//Columns most frequently active during learning, highest count last
func (bp *BaselinePredictor) topColumns(n int) []int {
	n = mathutil.Min(n, bp.NumOfCols)
	if n <= 0 {
		return nil
	}
	counts := make([]int, len(bp.ColumnCount))
	copy(counts, bp.ColumnCount)
	inds := make([]int, len(counts))
	ints.Argsort(counts, inds)
	return inds[len(inds)-n:]
}

func (bp *BaselinePredictor) Infer(activeColumns []int) {
	numColsToPredict := int(0.5 + bp.AverageDensity*float64(bp.NumOfCols))

	for _, method := range bp.Methods {
		state := bp.State[method]

		// Copy t-1 into t
		copy(state.ActiveStateLast, state.ActiveState)
		copy(state.PredictedStateLast, state.PredictedState)
		copy(state.ConfidenceLast, state.Confidence)

		utils.FillSliceBool(state.ActiveState, false)
		utils.FillSliceBool(state.PredictedState, false)
		utils.FillSliceFloat64(state.Confidence, 0.0)

		for _, val := range activeColumns {
			state.ActiveState[val] = true
		}

		var predictedCols []int

		switch method {
		case PredictRandom:
			population := make([]int, bp.NumOfCols)
			for i := range population {
				population[i] = i
			}
			predictedCols = bp.rng.Sample(population, numColsToPredict)
		case PredictZeroth:
			predictedCols = bp.topColumns(numColsToPredict)
		case PredictLast:
			predictedCols = utils.OnIndices(state.ActiveState)
		case PredictAll:
			for i := 0; i < bp.NumOfCols; i++ {
				predictedCols = append(predictedCols, i)
			}
		case PredictLots:
			predictedCols = bp.topColumns(2 * numColsToPredict)
		default:
			panic("baseline predictor: prediction method not implemented")
		}

		for _, val := range predictedCols {
			state.PredictedState[val] = true
			state.Confidence[val] = 1.0
		}

		bp.updateStats(method, activeColumns)

		if bp.Verbosity > 1 {
			fmt.Println("Baseline prediction:", method)
			fmt.Println(" numColsToPredict:", numColsToPredict)
			fmt.Println(predictedCols)
		}
	}
}

//Scores the new input against the prediction made on the previous step
func (bp *BaselinePredictor) updateStats(method PredictorMethod, activeColumns []int) {
	state := bp.State[method]
	stats := bp.InternalStats[method]

	stats.NInfersSinceReset++
	if stats.NInfersSinceReset <= 1 {
		// nothing was predicted before the first input of a sequence
		return
	}

	missing := 0
	for _, val := range activeColumns {
		if !state.PredictedStateLast[val] {
			missing++
		}
	}
	extra := 0
	for idx, val := range state.PredictedStateLast {
		if val && !utils.ContainsInt(idx, activeColumns) {
			extra++
		}
	}

	stats.NPredictions++
	numExpected := mathutil.Max(1, len(activeColumns))

	stats.CurMissing = float64(missing)
	stats.CurExtra = float64(extra)
	stats.TotalMissing += float64(missing)
	stats.TotalExtra += float64(extra)
	stats.PctExtraTotal += 100.0 * float64(extra) / float64(numExpected)
	stats.PctMissingTotal += 100.0 * float64(missing) / float64(numExpected)
}

/*
 Do one iteration of baseline learning: update the density estimate and
the column frequency counts, then predict.
*/
func (bp *BaselinePredictor) Learn(activeColumns []int) {
	// Running average of bottom up density
	density := float64(len(activeColumns)) / float64(bp.NumOfCols)
	bp.AverageDensity = 0.95*bp.AverageDensity + 0.05*density

	for _, val := range activeColumns {
		bp.ColumnCount[val]++
	}

	bp.Infer(activeColumns)
}

/*
 Reset the state of all methods. This is normally used between sequences
while training; learned column counts and accumulated totals survive.
*/
func (bp *BaselinePredictor) Reset() {
	for _, method := range bp.Methods {
		state := bp.State[method]

		utils.FillSliceBool(state.ActiveState, false)
		utils.FillSliceBool(state.ActiveStateLast, false)
		utils.FillSliceBool(state.PredictedState, false)
		utils.FillSliceBool(state.PredictedStateLast, false)
		utils.FillSliceFloat64(state.Confidence, 0.0)
		utils.FillSliceFloat64(state.ConfidenceLast, 0.0)

		stats := bp.InternalStats[method]
		stats.NInfersSinceReset = 0
		stats.CurMissing = 0.0
		stats.CurExtra = 0.0
	}
}

//Additionally clears all of the accumulated totals
func (bp *BaselinePredictor) ResetStats() {
	bp.Reset()
	for _, method := range bp.Methods {
		bp.InternalStats[method] = new(TmStats)
	}
}
