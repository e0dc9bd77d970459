package htm

import (
	"fmt"
	"sort"

	"github.com/cznic/mathutil"
)

/*
Params for initializing temporal memory
*/
type TemporalMemoryParams struct {
	//Column dimensions
	ColumnDimensions []int
	CellsPerColumn   int
	//If the number of active connected synapses on a segment is at least
	//this threshold, the segment is said to be active.
	ActivationThreshold int
	InitialPermanence   float64
	//If the permanence value for a synapse is at least this value, it is
	//said to be connected.
	ConnectedPermanence float64
	//If the number of potential synapses active on a segment is at least
	//this threshold, the segment is said to be matching and is a candidate
	//for learning in a bursting column. Must not exceed ActivationThreshold.
	MinThreshold int
	//The maximum number of synapses added to a segment during learning.
	MaxNewSynapseCount  int
	PermanenceIncrement float64
	PermanenceDecrement float64
	//Punishment applied to the active synapses of segments that predicted
	//a column which did not become active. Zero disables punishment.
	PredictedSegmentDecrement float64
	//rand seed
	Seed int64
	//Validate the shape of every input pattern. Turn off only when the
	//caller guarantees well-formed input and the check shows up in profiles.
	CheckInputs bool
	//Per-cell segment quota, enforced by least-recently-used eviction.
	//Zero or negative means unlimited.
	MaxSegmentsPerCell    int
	MaxSynapsesPerSegment int
	//Number of external predictive input cells. These are appended past
	//the end of the normal cell index range so one graph can mix
	//recurrent and externally driven context.
	ExternalPredictiveInputs int
	//Treat the input stream as a correlated timeseries: identical
	//back-to-back permanence updates are suppressed.
	Timeseries bool
}

//Create params with default values
func NewTemporalMemoryParams() *TemporalMemoryParams {
	p := new(TemporalMemoryParams)
	p.ColumnDimensions = []int{2048}
	p.CellsPerColumn = 32
	p.ActivationThreshold = 13
	p.InitialPermanence = 0.21
	p.ConnectedPermanence = 0.5
	p.MinThreshold = 10
	p.MaxNewSynapseCount = 20
	p.PermanenceIncrement = 0.1
	p.PermanenceDecrement = 0.1
	p.PredictedSegmentDecrement = 0.0
	p.Seed = 42
	p.CheckInputs = true
	p.MaxSegmentsPerCell = 255
	p.MaxSynapsesPerSegment = 255
	return p
}

/*
 Temporal memory: the sequence-learning state machine. Each time step it
derives predictive cells from the connection graph's activity against the
previous step's active cells, scores how anomalous the new input was
relative to those predictions, decides this step's active and winner
cells, and (when learning) drives structural and numeric mutation of the
graph.
*/
type TemporalMemory struct {
	params      *TemporalMemoryParams
	numColumns  int
	numCells    int
	connections *Connections
	rng         *Random

	//step state, cleared and rebuilt every step; both kept sorted
	activeCells []int
	winnerCells []int

	//segment handles meeting the activation/match thresholds this step,
	//sorted by (owning cell, creation order)
	activeSegments   []int
	matchingSegments []int

	numActiveConnected []int
	numActivePotential []int

	//externally supplied predictive context, already offset past numCells
	externalActive  []int
	externalWinners []int

	//true once dendrite activation has run for the current step
	segmentsValid bool

	//predictions consumed by the current step, kept for anomaly and
	//stats reporting after the step completes
	lastPredictiveCells  []int
	lastPredictedColumns []int

	anomaly   float64
	iteration int
}

/*
 Builds a ready-to-use temporal memory or reports why the parameters are
invalid. There is no usable default-constructed state.
*/
func NewTemporalMemory(p *TemporalMemoryParams) (*TemporalMemory, error) {
	if len(p.ColumnDimensions) == 0 {
		return nil, fmt.Errorf("temporal memory: no column dimensions given")
	}
	numColumns := 1
	for _, d := range p.ColumnDimensions {
		if d <= 0 {
			return nil, fmt.Errorf("temporal memory: non-positive column dimension %d", d)
		}
		numColumns *= d
	}
	if p.CellsPerColumn <= 0 {
		return nil, fmt.Errorf("temporal memory: cellsPerColumn must be positive, got %d", p.CellsPerColumn)
	}
	if p.ActivationThreshold <= 0 {
		return nil, fmt.Errorf("temporal memory: activationThreshold must be positive, got %d", p.ActivationThreshold)
	}
	if p.MinThreshold <= 0 || p.MinThreshold > p.ActivationThreshold {
		return nil, fmt.Errorf("temporal memory: minThreshold %d outside (0,activationThreshold=%d]",
			p.MinThreshold, p.ActivationThreshold)
	}
	if p.MaxNewSynapseCount <= 0 {
		return nil, fmt.Errorf("temporal memory: maxNewSynapseCount must be positive, got %d", p.MaxNewSynapseCount)
	}
	if p.MaxSynapsesPerSegment > 0 && p.MaxSynapsesPerSegment < p.MaxNewSynapseCount {
		return nil, fmt.Errorf("temporal memory: maxSynapsesPerSegment %d < maxNewSynapseCount %d",
			p.MaxSynapsesPerSegment, p.MaxNewSynapseCount)
	}
	for _, perm := range []float64{p.InitialPermanence, p.ConnectedPermanence,
		p.PermanenceIncrement, p.PermanenceDecrement, p.PredictedSegmentDecrement} {
		if perm < 0.0 || perm > 1.0 {
			return nil, fmt.Errorf("temporal memory: permanence parameter %v outside [0,1]", perm)
		}
	}
	if p.ExternalPredictiveInputs < 0 {
		return nil, fmt.Errorf("temporal memory: externalPredictiveInputs must not be negative")
	}

	tm := new(TemporalMemory)
	tm.params = p
	tm.numColumns = numColumns
	tm.numCells = numColumns * p.CellsPerColumn

	connections, err := NewConnections(tm.numCells+p.ExternalPredictiveInputs, p.ConnectedPermanence, p.Timeseries)
	if err != nil {
		return nil, err
	}
	tm.connections = connections
	tm.rng = NewRandom(p.Seed)
	tm.anomaly = AnomalyUndefined
	return tm, nil
}

func (tm *TemporalMemory) NumberOfColumns() int {
	return tm.numColumns
}

func (tm *TemporalMemory) NumberOfCells() int {
	return tm.numCells
}

func (tm *TemporalMemory) Connections() *Connections {
	return tm.connections
}

func (tm *TemporalMemory) Iteration() int {
	return tm.iteration
}

//Anomaly score of the last compute, AnomalyUndefined until one has run
func (tm *TemporalMemory) Anomaly() float64 {
	return tm.anomaly
}

func (tm *TemporalMemory) ActiveCells() []int {
	result := make([]int, len(tm.activeCells))
	copy(result, tm.activeCells)
	return result
}

func (tm *TemporalMemory) WinnerCells() []int {
	result := make([]int, len(tm.winnerCells))
	copy(result, tm.winnerCells)
	return result
}

func (tm *TemporalMemory) ActiveSegments() []int {
	result := make([]int, len(tm.activeSegments))
	copy(result, tm.activeSegments)
	return result
}

func (tm *TemporalMemory) MatchingSegments() []int {
	result := make([]int, len(tm.matchingSegments))
	copy(result, tm.matchingSegments)
	return result
}

//Cells that were predictive going into the most recent compute
func (tm *TemporalMemory) LastPredictiveCells() []int {
	result := make([]int, len(tm.lastPredictiveCells))
	copy(result, tm.lastPredictiveCells)
	return result
}

//Columns that were predicted going into the most recent compute
func (tm *TemporalMemory) LastPredictedColumns() []int {
	result := make([]int, len(tm.lastPredictedColumns))
	copy(result, tm.lastPredictedColumns)
	return result
}

func (tm *TemporalMemory) ColumnForCell(cell int) int {
	if cell < 0 || cell >= tm.numCells {
		panic(fmt.Sprintf("temporal memory: cell %d out of range [0,%d)", cell, tm.numCells))
	}
	return cell / tm.params.CellsPerColumn
}

func (tm *TemporalMemory) CellsForColumn(column int) []int {
	if column < 0 || column >= tm.numColumns {
		panic(fmt.Sprintf("temporal memory: column %d out of range [0,%d)", column, tm.numColumns))
	}
	start := column * tm.params.CellsPerColumn
	result := make([]int, tm.params.CellsPerColumn)
	for i := range result {
		result[i] = start + i
	}
	return result
}

func (tm *TemporalMemory) columnForSegment(segment int) int {
	return tm.ColumnForCell(tm.connections.CellForSegment(segment))
}

/*
 Cells expecting to fire next step: the owners of the currently active
segments, sorted and deduplicated. Only valid after ActivateDendrites.
*/
func (tm *TemporalMemory) PredictiveCells() []int {
	if !tm.segmentsValid {
		panic("temporal memory: PredictiveCells called before ActivateDendrites")
	}
	var result []int
	for _, seg := range tm.activeSegments {
		cell := tm.connections.CellForSegment(seg)
		if len(result) == 0 || result[len(result)-1] != cell {
			result = append(result, cell)
		}
	}
	return result
}

//Predictive cells projected down to their owning columns, deduplicated
func (tm *TemporalMemory) PredictedColumns() []int {
	var result []int
	for _, cell := range tm.PredictiveCells() {
		column := tm.ColumnForCell(cell)
		if len(result) == 0 || result[len(result)-1] != column {
			result = append(result, column)
		}
	}
	return result
}

func (tm *TemporalMemory) checkDimensions(activeColumns *SparseBinaryVector) error {
	if activeColumns == nil {
		return fmt.Errorf("temporal memory: active column pattern is nil")
	}
	if tm.params.CheckInputs && activeColumns.Size() != tm.numColumns {
		return fmt.Errorf("temporal memory: active column pattern size %d != configured %d columns",
			activeColumns.Size(), tm.numColumns)
	}
	return nil
}

func (tm *TemporalMemory) offsetExternal(cells []int) []int {
	if len(cells) == 0 {
		return nil
	}
	result := make([]int, len(cells))
	for i, cell := range cells {
		if cell < 0 || cell >= tm.params.ExternalPredictiveInputs {
			panic(fmt.Sprintf("temporal memory: external cell %d out of range [0,%d)",
				cell, tm.params.ExternalPredictiveInputs))
		}
		result[i] = tm.numCells + cell
	}
	sort.Ints(result)
	return result
}

/*
 Computes segment activity against the previous step's active cells plus
any externally supplied predictive context, and derives the active and
matching segment lists for this step. Idempotent within a step: guarded
by the validity flag, which Reset and ActivateCells clear.
*/
func (tm *TemporalMemory) ActivateDendrites(learn bool, externalActive, externalWinners []int) {
	if tm.segmentsValid {
		return
	}
	if tm.params.ExternalPredictiveInputs == 0 &&
		(len(externalActive) > 0 || len(externalWinners) > 0) {
		panic("temporal memory: external predictive inputs were not configured")
	}
	tm.externalActive = tm.offsetExternal(externalActive)
	tm.externalWinners = tm.offsetExternal(externalWinners)

	presynaptic := make([]int, 0, len(tm.activeCells)+len(tm.externalActive))
	presynaptic = append(presynaptic, tm.activeCells...)
	presynaptic = append(presynaptic, tm.externalActive...)

	connected, potential := tm.connections.ComputeActivity(presynaptic, learn)
	tm.numActiveConnected = connected
	tm.numActivePotential = potential

	var active, matching []int
	for seg := 0; seg < len(connected); seg++ {
		if !tm.connections.SegmentExists(seg) {
			continue
		}
		if connected[seg] >= tm.params.ActivationThreshold {
			active = append(active, seg)
		}
		if potential[seg] >= tm.params.MinThreshold {
			matching = append(matching, seg)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return tm.connections.CompareSegments(active[i], active[j])
	})
	sort.Slice(matching, func(i, j int) bool {
		return tm.connections.CompareSegments(matching[i], matching[j])
	})

	if learn {
		for _, seg := range active {
			tm.connections.RecordSegmentActivity(seg)
		}
	}

	tm.activeSegments = active
	tm.matchingSegments = matching
	tm.segmentsValid = true
}

/*
 Decides this step's active and winner cells with one synchronized walk
over three column-sorted sequences: the sparse active column list, the
active segments and the matching segments. Each column encountered falls
into exactly one of four cases: predicted and active, unpredicted and
active (bursting), predicted but not active (punished when learning), or
neither (no-op). The walk depends on all three sequences staying sorted
by column; CompareSegments guarantees that for the segment lists.
*/
func (tm *TemporalMemory) ActivateCells(activeColumns *SparseBinaryVector, learn bool) error {
	if err := tm.checkDimensions(activeColumns); err != nil {
		return err
	}
	if !tm.segmentsValid {
		panic("temporal memory: ActivateCells called before ActivateDendrites")
	}

	prevWinner := tm.winnerCells

	prevActiveVec, err := NewSparseBinaryVector([]int{tm.connections.NumCells()})
	if err != nil {
		return err
	}
	for _, cell := range tm.activeCells {
		prevActiveVec.Set(cell, true)
	}
	for _, cell := range tm.externalActive {
		prevActiveVec.Set(cell, true)
	}

	growthCandidates := make([]int, 0, len(prevWinner)+len(tm.externalWinners))
	growthCandidates = append(growthCandidates, prevWinner...)
	growthCandidates = append(growthCandidates, tm.externalWinners...)

	tm.activeCells = nil
	tm.winnerCells = nil

	columns := activeColumns.GetSparse()

	ci, ai, mi := 0, 0, 0
	for ci < len(columns) || ai < len(tm.activeSegments) || mi < len(tm.matchingSegments) {
		column := int(^uint(0) >> 1)
		if ci < len(columns) {
			column = columns[ci]
		}
		if ai < len(tm.activeSegments) {
			column = mathutil.Min(column, tm.columnForSegment(tm.activeSegments[ai]))
		}
		if mi < len(tm.matchingSegments) {
			column = mathutil.Min(column, tm.columnForSegment(tm.matchingSegments[mi]))
		}

		asBegin := ai
		for ai < len(tm.activeSegments) && tm.columnForSegment(tm.activeSegments[ai]) == column {
			ai++
		}
		msBegin := mi
		for mi < len(tm.matchingSegments) && tm.columnForSegment(tm.matchingSegments[mi]) == column {
			mi++
		}
		activeForCol := tm.activeSegments[asBegin:ai]
		matchingForCol := tm.matchingSegments[msBegin:mi]

		if ci < len(columns) && columns[ci] == column {
			ci++
			if len(activeForCol) > 0 {
				tm.activatePredictedColumn(activeForCol, prevActiveVec, growthCandidates, learn)
			} else {
				tm.burstColumn(column, matchingForCol, prevActiveVec, prevWinner, growthCandidates, learn)
			}
		} else if learn && tm.params.PredictedSegmentDecrement > 0.0 {
			tm.punishPredictedColumn(matchingForCol, prevActiveVec)
		}
	}

	tm.segmentsValid = false
	tm.iteration++
	return nil
}

/*
 A correctly predicted column: every active segment's owner becomes active
and winner. When learning, each such segment is reinforced against the
previous active cells and grows synapses toward the previous winner cells
up to the per-step growth budget.
*/
func (tm *TemporalMemory) activatePredictedColumn(activeForCol []int,
	prevActiveVec *SparseBinaryVector, growthCandidates []int, learn bool) {

	for _, seg := range activeForCol {
		cell := tm.connections.CellForSegment(seg)
		if n := len(tm.activeCells); n == 0 || tm.activeCells[n-1] != cell {
			tm.activeCells = append(tm.activeCells, cell)
			tm.winnerCells = append(tm.winnerCells, cell)
		}
		if learn {
			tm.connections.AdaptSegment(seg, prevActiveVec,
				tm.params.PermanenceIncrement, tm.params.PermanenceDecrement,
				true, tm.params.MinThreshold)
			if tm.connections.SegmentExists(seg) {
				nGrow := tm.params.MaxNewSynapseCount - tm.numActivePotential[seg]
				if nGrow > 0 {
					tm.connections.GrowSynapses(seg, growthCandidates,
						tm.params.InitialPermanence, tm.rng, nGrow, tm.params.MaxSynapsesPerSegment)
				}
			}
		}
	}
}

/*
 An unpredicted active column bursts: every cell in it becomes active. The
winner is the owner of the best matching segment if one exists, else the
cell that won in this column last step, else the cell with the fewest
segments under a shuffled deterministic tie-break. When learning, the best
matching segment is reinforced, or a new segment is grown on the winner.
*/
func (tm *TemporalMemory) burstColumn(column int, matchingForCol []int,
	prevActiveVec *SparseBinaryVector, prevWinner []int, growthCandidates []int, learn bool) {

	start := column * tm.params.CellsPerColumn
	for cell := start; cell < start+tm.params.CellsPerColumn; cell++ {
		tm.activeCells = append(tm.activeCells, cell)
	}

	winner := -1
	bestSeg := -1
	if len(matchingForCol) > 0 {
		bestSeg = matchingForCol[0]
		for _, seg := range matchingForCol[1:] {
			if tm.numActivePotential[seg] > tm.numActivePotential[bestSeg] {
				bestSeg = seg
			}
		}
		winner = tm.connections.CellForSegment(bestSeg)
	} else {
		winner = prevWinnerInColumn(prevWinner, start, tm.params.CellsPerColumn)
		if winner == -1 {
			winner = tm.leastUsedCell(column)
		}
	}
	tm.winnerCells = append(tm.winnerCells, winner)

	if !learn {
		return
	}
	if bestSeg != -1 {
		tm.connections.AdaptSegment(bestSeg, prevActiveVec,
			tm.params.PermanenceIncrement, tm.params.PermanenceDecrement,
			true, tm.params.MinThreshold)
		if tm.connections.SegmentExists(bestSeg) {
			nGrow := tm.params.MaxNewSynapseCount - tm.numActivePotential[bestSeg]
			if nGrow > 0 {
				tm.connections.GrowSynapses(bestSeg, growthCandidates,
					tm.params.InitialPermanence, tm.rng, nGrow, tm.params.MaxSynapsesPerSegment)
			}
		}
	} else if len(growthCandidates) > 0 {
		nGrow := mathutil.Min(tm.params.MaxNewSynapseCount, len(growthCandidates))
		seg := tm.connections.CreateSegment(winner, tm.params.MaxSegmentsPerCell)
		tm.connections.GrowSynapses(seg, growthCandidates,
			tm.params.InitialPermanence, tm.rng, nGrow, tm.params.MaxSynapsesPerSegment)
	}
}

//A predicted column that did not activate: weaken the segments that
//voted for it. Negative-only adaptation, inactive synapses untouched.
func (tm *TemporalMemory) punishPredictedColumn(matchingForCol []int, prevActiveVec *SparseBinaryVector) {
	for _, seg := range matchingForCol {
		tm.connections.AdaptSegment(seg, prevActiveVec,
			-tm.params.PredictedSegmentDecrement, 0.0, false, 0)
	}
}

//Binary search for last step's winner cell inside the column, -1 if none
func prevWinnerInColumn(prevWinner []int, start, cellsPerColumn int) int {
	idx := sort.SearchInts(prevWinner, start)
	if idx < len(prevWinner) && prevWinner[idx] < start+cellsPerColumn {
		return prevWinner[idx]
	}
	return -1
}

//Cell in the column owning the fewest segments; ties broken by a
//deterministic shuffle so no cell is structurally favored
func (tm *TemporalMemory) leastUsedCell(column int) int {
	cells := tm.CellsForColumn(column)
	tm.rng.Shuffle(cells)

	best := cells[0]
	for _, cell := range cells[1:] {
		if tm.connections.NumSegmentsForCell(cell) < tm.connections.NumSegmentsForCell(best) {
			best = cell
		}
	}
	return best
}

/*
 One full time step: dendrite activation against the previous step's
active cells, anomaly scoring of the new input against the old
predictions, then cell activation and learning.
*/
func (tm *TemporalMemory) Compute(activeColumns *SparseBinaryVector, learn bool) error {
	return tm.ComputeWithExternal(activeColumns, learn, nil, nil)
}

func (tm *TemporalMemory) ComputeWithExternal(activeColumns *SparseBinaryVector, learn bool,
	externalActive, externalWinners []int) error {

	if err := tm.checkDimensions(activeColumns); err != nil {
		return err
	}

	tm.ActivateDendrites(learn, externalActive, externalWinners)

	// the old predictions against the new input, strictly between
	// dendrite and cell activation
	tm.lastPredictiveCells = tm.PredictiveCells()
	tm.lastPredictedColumns = tm.PredictedColumns()
	tm.anomaly = ComputeRawAnomalyScore(activeColumns.GetSparse(), tm.lastPredictedColumns)

	return tm.ActivateCells(activeColumns, learn)
}

/*
 Clears all per-step state, ready for the start of a new sequence. The
anomaly score becomes the explicit undefined sentinel, distinct from 0
which is a valid perfect-prediction score. Learned structure is kept.
*/
func (tm *TemporalMemory) Reset() {
	tm.activeCells = nil
	tm.winnerCells = nil
	tm.activeSegments = nil
	tm.matchingSegments = nil
	tm.numActiveConnected = nil
	tm.numActivePotential = nil
	tm.externalActive = nil
	tm.externalWinners = nil
	tm.lastPredictiveCells = nil
	tm.lastPredictedColumns = nil
	tm.segmentsValid = false
	tm.anomaly = AnomalyUndefined
}
