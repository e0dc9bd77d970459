//
// Snapshot persistence for the connection graph and the temporal memory
//

package htm

import (
	"encoding/gob"
	"fmt"
	"io"
	"sort"
)

/*
 Wire form of the graph. Only the arenas, the free lists and the counters
are stored; the reverse indices and the per-cell segment lists are derived
state and are rebuilt on load. Event subscribers are runtime wiring and do
not survive a round trip.
*/
type synapseState struct {
	Segment         int
	PresynapticCell int
	Permanence      float64
	Destroyed       bool
}

type segmentState struct {
	Cell      int
	Synapses  []int
	LastUsed  int
	Ordinal   uint64
	Destroyed bool
}

type connectionsState struct {
	NumCells           int
	ConnectedThreshold float64
	Timeseries         bool
	Segments           []segmentState
	Synapses           []synapseState
	DestroyedSegments  []int
	DestroyedSynapses  []int
	Iteration          int
	NextSegmentOrdinal uint64
	PrevUpdates        []float64
	CurrUpdates        []float64
}

func (c *Connections) snapshot() connectionsState {
	state := connectionsState{
		NumCells:           c.numCells,
		ConnectedThreshold: c.connectedThreshold,
		Timeseries:         c.timeseries,
		Iteration:          c.iteration,
		NextSegmentOrdinal: c.nextSegmentOrdinal,
	}

	state.Segments = make([]segmentState, len(c.segments))
	for i, seg := range c.segments {
		synapses := make([]int, len(seg.Synapses))
		copy(synapses, seg.Synapses)
		state.Segments[i] = segmentState{
			Cell:      seg.Cell,
			Synapses:  synapses,
			LastUsed:  seg.LastUsed,
			Ordinal:   seg.ordinal,
			Destroyed: seg.destroyed,
		}
	}
	state.Synapses = make([]synapseState, len(c.synapses))
	for i, syn := range c.synapses {
		state.Synapses[i] = synapseState{
			Segment:         syn.Segment,
			PresynapticCell: syn.PresynapticCell,
			Permanence:      syn.Permanence,
			Destroyed:       syn.destroyed,
		}
	}

	state.DestroyedSegments = make([]int, len(c.destroyedSegments))
	copy(state.DestroyedSegments, c.destroyedSegments)
	state.DestroyedSynapses = make([]int, len(c.destroyedSynapses))
	copy(state.DestroyedSynapses, c.destroyedSynapses)

	state.PrevUpdates = make([]float64, len(c.prevUpdates))
	copy(state.PrevUpdates, c.prevUpdates)
	state.CurrUpdates = make([]float64, len(c.currUpdates))
	copy(state.CurrUpdates, c.currUpdates)

	return state
}

func restoreConnections(state connectionsState) (*Connections, error) {
	c, err := NewConnections(state.NumCells, state.ConnectedThreshold, state.Timeseries)
	if err != nil {
		return nil, err
	}
	c.iteration = state.Iteration
	c.nextSegmentOrdinal = state.NextSegmentOrdinal

	c.segments = make([]SegmentData, len(state.Segments))
	for i, seg := range state.Segments {
		if !seg.Destroyed && (seg.Cell < 0 || seg.Cell >= state.NumCells) {
			return nil, fmt.Errorf("connections: segment %d owned by invalid cell %d", i, seg.Cell)
		}
		synapses := make([]int, len(seg.Synapses))
		copy(synapses, seg.Synapses)
		c.segments[i] = SegmentData{
			Cell:      seg.Cell,
			Synapses:  synapses,
			LastUsed:  seg.LastUsed,
			ordinal:   seg.Ordinal,
			destroyed: seg.Destroyed,
		}
		if !seg.Destroyed {
			c.numLiveSegments++
		}
	}
	c.synapses = make([]SynapseData, len(state.Synapses))
	for i, syn := range state.Synapses {
		if !syn.Destroyed {
			if syn.PresynapticCell < 0 || syn.PresynapticCell >= state.NumCells {
				return nil, fmt.Errorf("connections: synapse %d from invalid cell %d", i, syn.PresynapticCell)
			}
			if syn.Segment < 0 || syn.Segment >= len(c.segments) || c.segments[syn.Segment].destroyed {
				return nil, fmt.Errorf("connections: synapse %d on invalid segment %d", i, syn.Segment)
			}
		}
		c.synapses[i] = SynapseData{
			Segment:         syn.Segment,
			PresynapticCell: syn.PresynapticCell,
			Permanence:      syn.Permanence,
			destroyed:       syn.Destroyed,
		}
		if !syn.Destroyed {
			c.numLiveSynapses++
		}
	}

	c.destroyedSegments = make([]int, len(state.DestroyedSegments))
	copy(c.destroyedSegments, state.DestroyedSegments)
	c.destroyedSynapses = make([]int, len(state.DestroyedSynapses))
	copy(c.destroyedSynapses, state.DestroyedSynapses)

	c.prevUpdates = make([]float64, len(state.PrevUpdates))
	copy(c.prevUpdates, state.PrevUpdates)
	c.currUpdates = make([]float64, len(state.CurrUpdates))
	copy(c.currUpdates, state.CurrUpdates)

	c.rebuildIndexes()
	return c, nil
}

/*
 Rebuilds all derived state from the arenas: the per-cell segment lists,
both reverse indices and the connected synapse counts. Per-cell lists are
ordered by segment ordinal, which is the order creation left them in;
bucket order within the reverse indices only feeds commutative counts and
is rebuilt in handle order.
*/
func (c *Connections) rebuildIndexes() {
	for seg := range c.segments {
		if c.segments[seg].destroyed {
			continue
		}
		c.segments[seg].NumConnected = 0
		c.cells[c.segments[seg].Cell] = append(c.cells[c.segments[seg].Cell], seg)
	}
	for _, segs := range c.cells {
		sort.Slice(segs, func(i, j int) bool {
			return c.segments[segs[i]].ordinal < c.segments[segs[j]].ordinal
		})
	}

	for syn := range c.synapses {
		data := &c.synapses[syn]
		if data.destroyed {
			continue
		}
		c.potentialSynapses[data.PresynapticCell] = append(c.potentialSynapses[data.PresynapticCell], syn)
		c.potentialSegments[data.PresynapticCell] = append(c.potentialSegments[data.PresynapticCell], data.Segment)
		if data.Permanence >= c.connectedThreshold {
			c.connectedSynapses[data.PresynapticCell] = append(c.connectedSynapses[data.PresynapticCell], syn)
			c.connectedSegments[data.PresynapticCell] = append(c.connectedSegments[data.PresynapticCell], data.Segment)
			c.segments[data.Segment].NumConnected++
		}
	}
}

//Writes a gob-encoded snapshot of the graph
func (c *Connections) SaveTo(w io.Writer) error {
	return gob.NewEncoder(w).Encode(c.snapshot())
}

//Reads a graph snapshot written by SaveTo
func LoadConnections(r io.Reader) (*Connections, error) {
	var state connectionsState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, fmt.Errorf("connections: decoding snapshot: %v", err)
	}
	return restoreConnections(state)
}

type temporalMemoryState struct {
	Params      TemporalMemoryParams
	Connections connectionsState
	Rng         RandomState

	ActiveCells        []int
	WinnerCells        []int
	ActiveSegments     []int
	MatchingSegments   []int
	NumActiveConnected []int
	NumActivePotential []int
	ExternalActive     []int
	ExternalWinners    []int
	SegmentsValid      bool

	LastPredictiveCells  []int
	LastPredictedColumns []int

	Anomaly   float64
	Iteration int
}

/*
 Writes a gob-encoded snapshot of the full temporal memory: parameters,
the connection graph, the random stream position and all per-step state.
A loaded instance continues the stream exactly where the saved one left
off.
*/
func (tm *TemporalMemory) SaveTo(w io.Writer) error {
	state := temporalMemoryState{
		Params:               *tm.params,
		Connections:          tm.connections.snapshot(),
		Rng:                  tm.rng.Save(),
		ActiveCells:          tm.activeCells,
		WinnerCells:          tm.winnerCells,
		ActiveSegments:       tm.activeSegments,
		MatchingSegments:     tm.matchingSegments,
		NumActiveConnected:   tm.numActiveConnected,
		NumActivePotential:   tm.numActivePotential,
		ExternalActive:       tm.externalActive,
		ExternalWinners:      tm.externalWinners,
		SegmentsValid:        tm.segmentsValid,
		LastPredictiveCells:  tm.lastPredictiveCells,
		LastPredictedColumns: tm.lastPredictedColumns,
		Anomaly:              tm.anomaly,
		Iteration:            tm.iteration,
	}
	return gob.NewEncoder(w).Encode(state)
}

//Reads a temporal memory snapshot written by SaveTo
func LoadTemporalMemory(r io.Reader) (*TemporalMemory, error) {
	var state temporalMemoryState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, fmt.Errorf("temporal memory: decoding snapshot: %v", err)
	}

	// revalidates the parameters the same way first-time construction does
	tm, err := NewTemporalMemory(&state.Params)
	if err != nil {
		return nil, err
	}

	connections, err := restoreConnections(state.Connections)
	if err != nil {
		return nil, err
	}
	tm.connections = connections
	tm.rng.Restore(state.Rng)

	tm.activeCells = state.ActiveCells
	tm.winnerCells = state.WinnerCells
	tm.activeSegments = state.ActiveSegments
	tm.matchingSegments = state.MatchingSegments
	tm.numActiveConnected = state.NumActiveConnected
	tm.numActivePotential = state.NumActivePotential
	tm.externalActive = state.ExternalActive
	tm.externalWinners = state.ExternalWinners
	tm.segmentsValid = state.SegmentsValid
	tm.lastPredictiveCells = state.LastPredictiveCells
	tm.lastPredictedColumns = state.LastPredictedColumns
	tm.anomaly = state.Anomaly
	tm.iteration = state.Iteration

	return tm, nil
}
