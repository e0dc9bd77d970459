package htm

import (
	"fmt"
	"sort"

	"github.com/cznic/mathutil"
	"github.com/htm-community/htmcore/utils"
)

//Permanence bump used by RaisePermanencesToThreshold
const permanenceRaiseStep = 0.01

/*
 Synapse data: a weighted link from a segment back to one presynaptic cell.
Handles index into a growable arena; destroyed handles go on a free list and
are reused last-in first-out, so a replayed construction sequence assigns
identical handles.
*/
type SynapseData struct {
	Segment         int
	PresynapticCell int
	Permanence      float64

	destroyed bool
}

type SegmentData struct {
	Cell         int
	Synapses     []int
	NumConnected int
	//iteration the segment was last active or adapted on, used for
	//least-recently-used eviction
	LastUsed int

	ordinal   uint64
	destroyed bool
}

/*
 Listener invoked on structural mutations and threshold-crossing permanence
updates. Registered handlers are owned by the graph until unsubscribed.
*/
type ConnectionsEventHandler interface {
	OnCreateSegment(segment int)
	OnDestroySegment(segment int)
	OnCreateSynapse(synapse int)
	OnDestroySynapse(synapse int)
	OnUpdateSynapsePermanence(synapse int, permanence float64)
}

type connectionsSubscriber struct {
	token   uint64
	handler ConnectionsEventHandler
}

/*
 Connections holds the connectivity of a layer of cells: every cell, the
segments it owns and the synapses on those segments, plus two reverse
indices keyed by presynaptic cell. The potential index holds every live
synapse; the connected index holds the subset whose permanence is at or
above the connected threshold. Activity computation walks only the buckets
of the active cells, so its cost scales with active fan-out rather than
total segment count.

The graph knows nothing about the sequence memory that drives it.
*/
type Connections struct {
	numCells           int
	connectedThreshold float64
	timeseries         bool

	cells    [][]int
	segments []SegmentData
	synapses []SynapseData

	destroyedSegments []int
	destroyedSynapses []int

	numLiveSegments int
	numLiveSynapses int

	//reverse indices: presynaptic cell -> parallel (synapse, owning segment)
	//handle slices
	potentialSynapses map[int][]int
	potentialSegments map[int][]int
	connectedSynapses map[int][]int
	connectedSegments map[int][]int

	//monotonic step counter advanced by ComputeActivity(learn=true),
	//read for LRU eviction
	iteration int

	nextSegmentOrdinal uint64

	//previous/current adaptation direction per synapse handle, used to
	//suppress repeating the identical update on autocorrelated streams
	prevUpdates []float64
	currUpdates []float64

	subscribers []connectionsSubscriber
	nextToken   uint64
}

func NewConnections(numCells int, connectedThreshold float64, timeseries bool) (*Connections, error) {
	if numCells <= 0 {
		return nil, fmt.Errorf("connections: numCells must be positive, got %d", numCells)
	}
	if connectedThreshold < 0.0 || connectedThreshold > 1.0 {
		return nil, fmt.Errorf("connections: connectedThreshold %v outside [0,1]", connectedThreshold)
	}

	c := new(Connections)
	c.numCells = numCells
	c.connectedThreshold = connectedThreshold
	c.timeseries = timeseries
	c.cells = make([][]int, numCells)
	c.potentialSynapses = make(map[int][]int)
	c.potentialSegments = make(map[int][]int)
	c.connectedSynapses = make(map[int][]int)
	c.connectedSegments = make(map[int][]int)
	return c, nil
}

func (c *Connections) NumCells() int {
	return c.numCells
}

func (c *Connections) ConnectedThreshold() float64 {
	return c.connectedThreshold
}

func (c *Connections) Iteration() int {
	return c.iteration
}

func (c *Connections) NumSegments() int {
	return c.numLiveSegments
}

func (c *Connections) NumSynapses() int {
	return c.numLiveSynapses
}

//Length of the flat segment index space, including dead slots awaiting reuse
func (c *Connections) SegmentFlatListLength() int {
	return len(c.segments)
}

func (c *Connections) SegmentExists(segment int) bool {
	return segment >= 0 && segment < len(c.segments) && !c.segments[segment].destroyed
}

func (c *Connections) SynapseExists(synapse int) bool {
	return synapse >= 0 && synapse < len(c.synapses) && !c.synapses[synapse].destroyed
}

func (c *Connections) assertSegment(segment int) {
	if !c.SegmentExists(segment) {
		panic(fmt.Sprintf("connections: segment %d does not exist", segment))
	}
}

func (c *Connections) assertSynapse(synapse int) {
	if !c.SynapseExists(synapse) {
		panic(fmt.Sprintf("connections: synapse %d does not exist", synapse))
	}
}

func (c *Connections) SegmentsForCell(cell int) []int {
	result := make([]int, len(c.cells[cell]))
	copy(result, c.cells[cell])
	return result
}

func (c *Connections) NumSegmentsForCell(cell int) int {
	return len(c.cells[cell])
}

func (c *Connections) SynapsesForSegment(segment int) []int {
	c.assertSegment(segment)
	result := make([]int, len(c.segments[segment].Synapses))
	copy(result, c.segments[segment].Synapses)
	return result
}

func (c *Connections) NumSynapsesForSegment(segment int) int {
	c.assertSegment(segment)
	return len(c.segments[segment].Synapses)
}

func (c *Connections) NumConnectedSynapsesForSegment(segment int) int {
	c.assertSegment(segment)
	return c.segments[segment].NumConnected
}

func (c *Connections) CellForSegment(segment int) int {
	c.assertSegment(segment)
	return c.segments[segment].Cell
}

func (c *Connections) DataForSegment(segment int) SegmentData {
	c.assertSegment(segment)
	return c.segments[segment]
}

func (c *Connections) DataForSynapse(synapse int) SynapseData {
	c.assertSynapse(synapse)
	return c.synapses[synapse]
}

/*
 Orders two segments by owning cell, then by creation order on that cell.
This is the ordering contract the sequence memory's column merge walk
depends on.
*/
func (c *Connections) CompareSegments(a, b int) bool {
	da := &c.segments[a]
	db := &c.segments[b]
	if da.Cell == db.Cell {
		return da.ordinal < db.ordinal
	}
	return da.Cell < db.Cell
}

func (c *Connections) Subscribe(handler ConnectionsEventHandler) uint64 {
	token := c.nextToken
	c.nextToken++
	c.subscribers = append(c.subscribers, connectionsSubscriber{token, handler})
	return token
}

func (c *Connections) Unsubscribe(token uint64) {
	for i, sub := range c.subscribers {
		if sub.token == token {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

/*
 Creates a segment on the specified cell and returns its handle. If the cell
is already at maxSegmentsPerCell, the least-recently-used segment on the
cell is destroyed first; the first segment scanned wins a tie, which keeps
eviction deterministic. maxSegmentsPerCell <= 0 means no limit.
*/
func (c *Connections) CreateSegment(cell int, maxSegmentsPerCell int) int {
	if cell < 0 || cell >= c.numCells {
		panic(fmt.Sprintf("connections: cell %d out of range [0,%d)", cell, c.numCells))
	}

	for maxSegmentsPerCell > 0 && len(c.cells[cell]) >= maxSegmentsPerCell {
		lru := c.cells[cell][0]
		for _, seg := range c.cells[cell][1:] {
			if c.segments[seg].LastUsed < c.segments[lru].LastUsed {
				lru = seg
			}
		}
		c.DestroySegment(lru)
	}

	var segment int
	if n := len(c.destroyedSegments); n > 0 {
		segment = c.destroyedSegments[n-1]
		c.destroyedSegments = c.destroyedSegments[:n-1]
	} else {
		segment = len(c.segments)
		c.segments = append(c.segments, SegmentData{})
	}

	c.segments[segment] = SegmentData{
		Cell:     cell,
		LastUsed: c.iteration,
		ordinal:  c.nextSegmentOrdinal,
	}
	c.nextSegmentOrdinal++
	c.cells[cell] = append(c.cells[cell], segment)
	c.numLiveSegments++

	for _, sub := range c.subscribers {
		sub.handler.OnCreateSegment(segment)
	}
	return segment
}

/*
 Creates a synapse on the segment pointing at presynapticCell. A segment
never holds two synapses to the same presynaptic cell: if one already
exists its handle is returned and the requested permanence is discarded
(only UpdateSynapsePermanence may change an existing strength).
*/
func (c *Connections) CreateSynapse(segment int, presynapticCell int, permanence float64) int {
	c.assertSegment(segment)
	if presynapticCell < 0 || presynapticCell >= c.numCells {
		panic(fmt.Sprintf("connections: presynaptic cell %d out of range [0,%d)", presynapticCell, c.numCells))
	}

	for _, syn := range c.segments[segment].Synapses {
		if c.synapses[syn].PresynapticCell == presynapticCell {
			return syn
		}
	}

	var synapse int
	if n := len(c.destroyedSynapses); n > 0 {
		synapse = c.destroyedSynapses[n-1]
		c.destroyedSynapses = c.destroyedSynapses[:n-1]
	} else {
		synapse = len(c.synapses)
		c.synapses = append(c.synapses, SynapseData{})
		c.prevUpdates = append(c.prevUpdates, 0)
		c.currUpdates = append(c.currUpdates, 0)
	}

	perm := clipPermanence(permanence)
	c.synapses[synapse] = SynapseData{
		Segment:         segment,
		PresynapticCell: presynapticCell,
		Permanence:      perm,
	}
	c.segments[segment].Synapses = append(c.segments[segment].Synapses, synapse)
	c.potentialSynapses[presynapticCell] = append(c.potentialSynapses[presynapticCell], synapse)
	c.potentialSegments[presynapticCell] = append(c.potentialSegments[presynapticCell], segment)

	if perm >= c.connectedThreshold {
		c.connectedSynapses[presynapticCell] = append(c.connectedSynapses[presynapticCell], synapse)
		c.connectedSegments[presynapticCell] = append(c.connectedSegments[presynapticCell], segment)
		c.segments[segment].NumConnected++
	}
	c.numLiveSynapses++

	for _, sub := range c.subscribers {
		sub.handler.OnCreateSynapse(synapse)
	}
	return synapse
}

//Removes the synapse from the parallel (synapse, segment) bucket pair
func removeBucketEntry(syns []int, segs []int, synapse int) ([]int, []int) {
	for i, syn := range syns {
		if syn == synapse {
			return append(syns[:i], syns[i+1:]...), append(segs[:i], segs[i+1:]...)
		}
	}
	panic(fmt.Sprintf("connections: synapse %d missing from reverse index", synapse))
}

func (c *Connections) DestroySynapse(synapse int) {
	c.assertSynapse(synapse)

	for _, sub := range c.subscribers {
		sub.handler.OnDestroySynapse(synapse)
	}

	data := &c.synapses[synapse]
	cell := data.PresynapticCell

	if data.Permanence >= c.connectedThreshold {
		c.connectedSynapses[cell], c.connectedSegments[cell] =
			removeBucketEntry(c.connectedSynapses[cell], c.connectedSegments[cell], synapse)
		c.segments[data.Segment].NumConnected--
	}
	c.potentialSynapses[cell], c.potentialSegments[cell] =
		removeBucketEntry(c.potentialSynapses[cell], c.potentialSegments[cell], synapse)

	segSyns := c.segments[data.Segment].Synapses
	for i, syn := range segSyns {
		if syn == synapse {
			c.segments[data.Segment].Synapses = append(segSyns[:i], segSyns[i+1:]...)
			break
		}
	}

	c.prevUpdates[synapse] = 0
	c.currUpdates[synapse] = 0
	data.destroyed = true
	c.destroyedSynapses = append(c.destroyedSynapses, synapse)
	c.numLiveSynapses--
}

func (c *Connections) DestroySegment(segment int) {
	c.assertSegment(segment)

	for _, sub := range c.subscribers {
		sub.handler.OnDestroySegment(segment)
	}

	syns := c.SynapsesForSegment(segment)
	for _, syn := range syns {
		c.DestroySynapse(syn)
	}

	data := &c.segments[segment]
	cellSegs := c.cells[data.Cell]
	for i, seg := range cellSegs {
		if seg == segment {
			c.cells[data.Cell] = append(cellSegs[:i], cellSegs[i+1:]...)
			break
		}
	}

	data.destroyed = true
	c.destroyedSegments = append(c.destroyedSegments, segment)
	c.numLiveSegments--
}

/*
 The single path allowed to change a synapse's strength. Clamps to [0,1]
and, when the connected state crosses the threshold, moves the synapse
between the potential-only and connected reverse index buckets and updates
the owning segment's connected count.
*/
func (c *Connections) UpdateSynapsePermanence(synapse int, permanence float64) {
	c.assertSynapse(synapse)

	data := &c.synapses[synapse]
	perm := clipPermanence(permanence)
	before := data.Permanence >= c.connectedThreshold
	after := perm >= c.connectedThreshold
	cell := data.PresynapticCell

	if before != after {
		if after {
			c.connectedSynapses[cell] = append(c.connectedSynapses[cell], synapse)
			c.connectedSegments[cell] = append(c.connectedSegments[cell], data.Segment)
			c.segments[data.Segment].NumConnected++
		} else {
			c.connectedSynapses[cell], c.connectedSegments[cell] =
				removeBucketEntry(c.connectedSynapses[cell], c.connectedSegments[cell], synapse)
			c.segments[data.Segment].NumConnected--
		}
	}
	data.Permanence = perm

	for _, sub := range c.subscribers {
		sub.handler.OnUpdateSynapsePermanence(synapse, perm)
	}
}

//Marks the segment as used on the current iteration, for LRU eviction
func (c *Connections) RecordSegmentActivity(segment int) {
	c.assertSegment(segment)
	c.segments[segment].LastUsed = c.iteration
}

/*
 Computes the number of active connected and active potential synapses per
segment, given the set of active presynaptic cells. Both result slices are
indexed by flat segment handle and sized to the current flat list length;
dead slots stay zero. learn=true advances the iteration counter and, in
timeseries mode, rolls the per-synapse update-direction buffers over to
the next step.
*/
func (c *Connections) ComputeActivity(activePresynapticCells []int, learn bool) ([]int, []int) {
	numActiveConnected := make([]int, len(c.segments))
	numActivePotential := make([]int, len(c.segments))

	for _, cell := range activePresynapticCells {
		for _, seg := range c.connectedSegments[cell] {
			numActiveConnected[seg]++
		}
		for _, seg := range c.potentialSegments[cell] {
			numActivePotential[seg]++
		}
	}

	if learn {
		c.iteration++
		if c.timeseries {
			c.prevUpdates, c.currUpdates = c.currUpdates, c.prevUpdates
			utils.FillSliceFloat64(c.currUpdates, 0)
		}
	}
	return numActiveConnected, numActivePotential
}

/*
 Updates the permanence of every synapse on the segment: synapses whose
presynaptic cell is on in activeInputs are incremented, all others are
decremented, clamped to [0,1]. In timeseries mode an update identical in
direction to the one applied on the immediately preceding call is
suppressed, which stops permanences saturating on highly autocorrelated
streams.

With pruneZeroSynapses, synapses driven to the floor are destroyed, and if
the segment then holds fewer than segmentThreshold synapses the whole
segment is destroyed: it could structurally never activate again.
*/
func (c *Connections) AdaptSegment(segment int, activeInputs *SparseBinaryVector,
	increment, decrement float64, pruneZeroSynapses bool, segmentThreshold int) {
	c.assertSegment(segment)
	if activeInputs.Size() != c.numCells {
		panic(fmt.Sprintf("connections: adapt input size %d != numCells %d", activeInputs.Size(), c.numCells))
	}

	dense := activeInputs.GetDense()
	c.segments[segment].LastUsed = c.iteration

	var destroyLater []int
	for _, syn := range c.segments[segment].Synapses {
		data := &c.synapses[syn]

		update := -decrement
		if dense[data.PresynapticCell] {
			update = increment
		}

		newPerm := clipPermanence(data.Permanence + update)
		if c.timeseries {
			if update != c.prevUpdates[syn] {
				c.UpdateSynapsePermanence(syn, newPerm)
			} else {
				newPerm = data.Permanence
			}
			c.currUpdates[syn] = update
		} else {
			c.UpdateSynapsePermanence(syn, newPerm)
		}

		if pruneZeroSynapses && newPerm <= 0.0 {
			destroyLater = append(destroyLater, syn)
		}
	}

	for _, syn := range destroyLater {
		c.DestroySynapse(syn)
	}

	if pruneZeroSynapses && len(c.segments[segment].Synapses) < segmentThreshold {
		c.DestroySegment(segment)
	}
}

/*
 Uniformly bumps all of the segment's synapse strengths by a fixed step,
repeatedly, until at least minConnected of them are connected or every
synapse is already at maximum.
*/
func (c *Connections) RaisePermanencesToThreshold(segment int, minConnected int) {
	c.assertSegment(segment)

	for c.segments[segment].NumConnected < minConnected {
		allAtMax := true
		for _, syn := range c.segments[segment].Synapses {
			perm := c.synapses[syn].Permanence
			if perm < 1.0 {
				allAtMax = false
				c.UpdateSynapsePermanence(syn, perm+permanenceRaiseStep)
			}
		}
		if allAtMax {
			break
		}
	}
}

/*
 Destroys up to nDestroy of the segment's lowest-permanence synapses,
never touching one whose presynaptic cell appears in excludeCells (which
must be sorted ascending). Ties go to the synapse earliest in the
segment's list.
*/
func (c *Connections) DestroyMinPermanenceSynapses(segment int, nDestroy int, excludeCells []int) {
	c.assertSegment(segment)

	for nDestroy > 0 {
		minSyn := -1
		for _, syn := range c.segments[segment].Synapses {
			if utils.ContainsIntSorted(c.synapses[syn].PresynapticCell, excludeCells) {
				continue
			}
			if minSyn == -1 || c.synapses[syn].Permanence < c.synapses[minSyn].Permanence {
				minSyn = syn
			}
		}
		if minSyn == -1 {
			break
		}
		c.DestroySynapse(minSyn)
		nDestroy--
	}
}

/*
 Grows synapses from the segment toward up to maxNew of the candidate
presynaptic cells, at initialPermanence each. Cells the segment already
synapses onto are skipped. If the survivors would overflow
maxSynapsesPerSegment, the lowest-permanence synapses not pointing at a
candidate are destroyed first. Candidates are drawn without replacement
through the supplied generator, so growth is replayable from the seed.
*/
func (c *Connections) GrowSynapses(segment int, growthCandidates []int, initialPermanence float64,
	rng *Random, maxNew int, maxSynapsesPerSegment int) {
	c.assertSegment(segment)

	if maxNew <= 0 || len(growthCandidates) == 0 {
		return
	}

	existing := make([]int, 0, len(c.segments[segment].Synapses))
	for _, syn := range c.segments[segment].Synapses {
		existing = append(existing, c.synapses[syn].PresynapticCell)
	}
	candidates := utils.Complement(growthCandidates, existing)
	if len(candidates) == 0 {
		return
	}

	nActual := mathutil.Min(len(candidates), maxNew)
	if maxSynapsesPerSegment > 0 {
		overrun := len(c.segments[segment].Synapses) + nActual - maxSynapsesPerSegment
		if overrun > 0 {
			exclude := make([]int, len(candidates))
			copy(exclude, candidates)
			sort.Ints(exclude)
			c.DestroyMinPermanenceSynapses(segment, overrun, exclude)
		}
		nActual = mathutil.Min(nActual, maxSynapsesPerSegment-len(c.segments[segment].Synapses))
		if nActual <= 0 {
			return
		}
	}

	for _, cell := range rng.Sample(candidates, nActual) {
		c.CreateSynapse(segment, cell, initialPermanence)
	}
}

func clipPermanence(permanence float64) float64 {
	if permanence < 0.0 {
		return 0.0
	}
	if permanence > 1.0 {
		return 1.0
	}
	return permanence
}
