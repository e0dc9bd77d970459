package htm

import (
	"github.com/stretchr/testify/assert"
	"sort"
	"testing"
)

func testTemporalMemoryParams() *TemporalMemoryParams {
	p := NewTemporalMemoryParams()
	p.ColumnDimensions = []int{32}
	p.CellsPerColumn = 4
	p.ActivationThreshold = 3
	p.InitialPermanence = 0.21
	p.ConnectedPermanence = 0.5
	p.MinThreshold = 2
	p.MaxNewSynapseCount = 4
	p.PermanenceIncrement = 0.1
	p.PermanenceDecrement = 0.1
	p.PredictedSegmentDecrement = 0.0
	p.Seed = 42
	return p
}

func columnPattern(t *testing.T, tm *TemporalMemory, columns []int) *SparseBinaryVector {
	sv, err := NewSparseBinaryVector([]int{tm.NumberOfColumns()})
	assert.Nil(t, err)
	assert.Nil(t, sv.SetSparse(columns))
	return sv
}

func TestTemporalMemoryParamValidation(t *testing.T) {
	p := testTemporalMemoryParams()
	p.ColumnDimensions = nil
	_, err := NewTemporalMemory(p)
	assert.NotNil(t, err)

	p = testTemporalMemoryParams()
	p.ColumnDimensions = []int{16, 0}
	_, err = NewTemporalMemory(p)
	assert.NotNil(t, err)

	p = testTemporalMemoryParams()
	p.CellsPerColumn = 0
	_, err = NewTemporalMemory(p)
	assert.NotNil(t, err)

	p = testTemporalMemoryParams()
	p.MinThreshold = p.ActivationThreshold + 1
	_, err = NewTemporalMemory(p)
	assert.NotNil(t, err)

	p = testTemporalMemoryParams()
	p.InitialPermanence = 1.5
	_, err = NewTemporalMemory(p)
	assert.NotNil(t, err)

	p = testTemporalMemoryParams()
	p.ExternalPredictiveInputs = -1
	_, err = NewTemporalMemory(p)
	assert.NotNil(t, err)

	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)
	assert.Equal(t, 32, tm.NumberOfColumns())
	assert.Equal(t, 128, tm.NumberOfCells())
	assert.Equal(t, AnomalyUndefined, tm.Anomaly())
}

func TestTemporalMemoryMultiDimColumns(t *testing.T) {
	p := testTemporalMemoryParams()
	p.ColumnDimensions = []int{4, 8}
	tm, err := NewTemporalMemory(p)
	assert.Nil(t, err)
	assert.Equal(t, 32, tm.NumberOfColumns())
}

func TestColumnCellMapping(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	assert.Equal(t, 0, tm.ColumnForCell(0))
	assert.Equal(t, 0, tm.ColumnForCell(3))
	assert.Equal(t, 1, tm.ColumnForCell(4))
	assert.Equal(t, 31, tm.ColumnForCell(127))
	assert.Equal(t, []int{20, 21, 22, 23}, tm.CellsForColumn(5))

	assert.Panics(t, func() { tm.ColumnForCell(128) })
	assert.Panics(t, func() { tm.ColumnForCell(-1) })
	assert.Panics(t, func() { tm.CellsForColumn(32) })
}

func TestComputeRejectsWrongPatternSize(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	sv, err := NewSparseBinaryVector([]int{33})
	assert.Nil(t, err)
	assert.NotNil(t, tm.Compute(sv, true))
	assert.NotNil(t, tm.Compute(nil, true))

	// the size check can be waived, the nil check cannot
	p := testTemporalMemoryParams()
	p.CheckInputs = false
	unchecked, err := NewTemporalMemory(p)
	assert.Nil(t, err)
	small, err := NewSparseBinaryVector([]int{16})
	assert.Nil(t, err)
	assert.Nil(t, small.SetSparse([]int{2}))
	assert.Nil(t, unchecked.Compute(small, true))
	assert.NotNil(t, unchecked.Compute(nil, true))
}

func TestActivateDendritesIdempotent(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{1, 2, 3}), true))

	tm.ActivateDendrites(true, nil, nil)
	first := tm.ActiveSegments()
	iteration := tm.Connections().Iteration()

	// second call within the same step is a no-op
	tm.ActivateDendrites(true, nil, nil)
	assert.Equal(t, first, tm.ActiveSegments())
	assert.Equal(t, iteration, tm.Connections().Iteration())
}

func TestPredictiveCellsRequireDendrites(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)
	assert.Panics(t, func() { tm.PredictiveCells() })
	assert.Panics(t, func() {
		tm.ActivateCells(columnPattern(t, tm, []int{0}), true)
	})
}

func TestBurstingActivatesWholeColumn(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{0, 5}), true))

	assert.Equal(t, []int{0, 1, 2, 3, 20, 21, 22, 23}, tm.ActiveCells())
	// exactly one winner per bursting column
	winners := tm.WinnerCells()
	assert.Equal(t, 2, len(winners))
	assert.True(t, winners[0] < 4)
	assert.True(t, winners[1] >= 20 && winners[1] < 24)
	// with no previous winners there is nothing to grow toward
	assert.Equal(t, 0, tm.Connections().NumSegments())
	assert.Equal(t, 1.0, tm.Anomaly())
}

func TestBurstingGrowsSegmentOnWinner(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{0, 1, 2, 3}), true))
	prevWinners := tm.WinnerCells()
	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{8}), true))

	winners := tm.WinnerCells()
	assert.Equal(t, 1, len(winners))
	segments := tm.Connections().SegmentsForCell(winners[0])
	assert.Equal(t, 1, len(segments))

	// the new segment points back at the previous winner cells
	presynaptic := []int{}
	for _, syn := range tm.Connections().SynapsesForSegment(segments[0]) {
		data := tm.Connections().DataForSynapse(syn)
		assert.Equal(t, 0.21, data.Permanence)
		presynaptic = append(presynaptic, data.PresynapticCell)
	}
	sort.Ints(presynaptic)
	assert.Equal(t, prevWinners, presynaptic)
}

func TestResetClearsStepState(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{0, 1, 2}), true))
	assert.NotEqual(t, 0, len(tm.ActiveCells()))
	segments := tm.Connections().NumSegments()

	tm.Reset()
	assert.Equal(t, 0, len(tm.ActiveCells()))
	assert.Equal(t, 0, len(tm.WinnerCells()))
	assert.Equal(t, AnomalyUndefined, tm.Anomaly())
	// learned structure survives a reset
	assert.Equal(t, segments, tm.Connections().NumSegments())

	tm.ActivateDendrites(false, nil, nil)
	assert.Empty(t, tm.PredictiveCells())
}

/*
 Trains the transition A -> B with a reset between presentations, then
checks that A alone predicts exactly B's columns.
*/
func TestLearnsPairTransition(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	colsA := []int{1, 5, 9, 13}
	colsB := []int{2, 6, 10, 14}
	patternA := columnPattern(t, tm, colsA)
	patternB := columnPattern(t, tm, colsB)

	for i := 0; i < 10; i++ {
		tm.Reset()
		assert.Nil(t, tm.Compute(patternA, true))
		assert.Nil(t, tm.Compute(patternB, true))
	}

	tm.Reset()
	assert.Nil(t, tm.Compute(patternA, false))
	tm.ActivateDendrites(false, nil, nil)
	assert.Equal(t, colsB, tm.PredictedColumns())

	// a correctly predicted step activates only the predicted cells
	assert.Nil(t, tm.ActivateCells(patternB, false))
	active := tm.ActiveCells()
	assert.True(t, len(active) < 4*len(colsB))
	for _, cell := range active {
		assert.Contains(t, colsB, tm.ColumnForCell(cell))
	}
	assert.Equal(t, tm.WinnerCells(), active)
}

/*
 Repeats a three-pattern cycle without resets and expects the anomaly
score to converge once every transition has been learned.
*/
func TestCycleAnomalyConverges(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	cycle := [][]int{
		{0, 3, 6, 9},
		{1, 4, 7, 10},
		{2, 5, 8, 11},
	}
	patterns := make([]*SparseBinaryVector, len(cycle))
	for i, cols := range cycle {
		patterns[i] = columnPattern(t, tm, cols)
	}

	for i := 0; i < 50; i++ {
		for _, p := range patterns {
			assert.Nil(t, tm.Compute(p, true))
		}
	}

	for _, p := range patterns {
		assert.Nil(t, tm.Compute(p, false))
		assert.True(t, tm.Anomaly() < 0.1, "anomaly %v after training", tm.Anomaly())
	}
}

/*
 Two instances with identical parameters and seed, fed the identical
stream, must agree bit for bit at every step.
*/
func TestComputeIsDeterministic(t *testing.T) {
	tm1, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)
	tm2, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	population := make([]int, tm1.NumberOfColumns())
	for i := range population {
		population[i] = i
	}
	stream := NewRandom(7)

	for step := 0; step < 100; step++ {
		columns := stream.Sample(population, 5)
		sort.Ints(columns)
		p1 := columnPattern(t, tm1, columns)
		p2 := columnPattern(t, tm2, columns)

		assert.Nil(t, tm1.Compute(p1, true))
		assert.Nil(t, tm2.Compute(p2, true))

		assert.Equal(t, tm1.ActiveCells(), tm2.ActiveCells(), "step %d", step)
		assert.Equal(t, tm1.WinnerCells(), tm2.WinnerCells(), "step %d", step)
		assert.Equal(t, tm1.Anomaly(), tm2.Anomaly(), "step %d", step)
	}
	assert.Equal(t, tm1.Connections().NumSegments(), tm2.Connections().NumSegments())
	assert.Equal(t, tm1.Connections().NumSynapses(), tm2.Connections().NumSynapses())
}

func TestStepStateStaysSorted(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	stream := NewRandom(11)
	population := make([]int, tm.NumberOfColumns())
	for i := range population {
		population[i] = i
	}

	for step := 0; step < 20; step++ {
		columns := stream.Sample(population, 6)
		sort.Ints(columns)
		assert.Nil(t, tm.Compute(columnPattern(t, tm, columns), true))

		assert.True(t, sort.IntsAreSorted(tm.ActiveCells()))
		assert.True(t, sort.IntsAreSorted(tm.WinnerCells()))

		tm.ActivateDendrites(false, nil, nil)
		segments := tm.ActiveSegments()
		for i := 1; i < len(segments); i++ {
			assert.True(t, tm.Connections().CompareSegments(segments[i-1], segments[i]))
		}
	}
}

func TestPunishesWrongPrediction(t *testing.T) {
	p := testTemporalMemoryParams()
	p.PredictedSegmentDecrement = 0.15
	tm, err := NewTemporalMemory(p)
	assert.Nil(t, err)

	// a hand-built segment on column 3 voting for it after columns 0..2
	connections := tm.Connections()
	segment := connections.CreateSegment(12, p.MaxSegmentsPerCell)
	connections.CreateSynapse(segment, 0, 0.5)
	connections.CreateSynapse(segment, 4, 0.5)
	connections.CreateSynapse(segment, 8, 0.5)

	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{0, 1, 2}), true))
	// column 3 was predicted but column 7 activates instead
	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{7}), true))

	for _, syn := range connections.SynapsesForSegment(segment) {
		assert.InDelta(t, 0.35, connections.DataForSynapse(syn).Permanence, 1e-9)
	}
}

func TestPredictedSegmentDecrementZeroDisablesPunishment(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	connections := tm.Connections()
	segment := connections.CreateSegment(12, 255)
	connections.CreateSynapse(segment, 0, 0.5)
	connections.CreateSynapse(segment, 4, 0.5)
	connections.CreateSynapse(segment, 8, 0.5)

	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{0, 1, 2}), true))
	assert.Nil(t, tm.Compute(columnPattern(t, tm, []int{7}), true))

	for _, syn := range connections.SynapsesForSegment(segment) {
		assert.Equal(t, 0.5, connections.DataForSynapse(syn).Permanence)
	}
}

func TestExternalInputsRejectedWhenUnconfigured(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)
	assert.Panics(t, func() {
		tm.ComputeWithExternal(columnPattern(t, tm, []int{0}), true, []int{1}, nil)
	})
}

/*
 External predictive cells occupy the index range past the last internal
cell and can drive predictions on their own.
*/
func TestExternalPredictiveInputs(t *testing.T) {
	p := testTemporalMemoryParams()
	p.ExternalPredictiveInputs = 16
	tm, err := NewTemporalMemory(p)
	assert.Nil(t, err)
	assert.Equal(t, 128+16, tm.Connections().NumCells())

	external := []int{0, 1, 2}
	pattern := columnPattern(t, tm, []int{6})

	for i := 0; i < 10; i++ {
		tm.Reset()
		assert.Nil(t, tm.ComputeWithExternal(pattern, true, external, external))
		assert.Nil(t, tm.ComputeWithExternal(pattern, true, external, external))
	}

	tm.Reset()
	tm.ActivateDendrites(false, external, external)
	assert.Equal(t, []int{6}, tm.PredictedColumns())

	assert.Panics(t, func() { tm.offsetExternal([]int{16}) })
}
