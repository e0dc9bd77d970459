package htm

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"sort"
	"testing"
)

func TestConnectionsRoundTrip(t *testing.T) {
	c, err := NewConnections(64, 0.5, false)
	assert.Nil(t, err)

	seg1 := c.CreateSegment(10, 0)
	seg2 := c.CreateSegment(10, 0)
	c.CreateSynapse(seg1, 0, 0.3)
	syn := c.CreateSynapse(seg1, 1, 0.7)
	c.CreateSynapse(seg2, 2, 0.5)
	c.DestroySynapse(syn)
	destroyed := c.CreateSegment(11, 0)
	c.CreateSynapse(destroyed, 3, 0.6)
	c.DestroySegment(destroyed)

	var buf bytes.Buffer
	assert.Nil(t, c.SaveTo(&buf))
	restored, err := LoadConnections(&buf)
	assert.Nil(t, err)

	assert.Equal(t, c.NumCells(), restored.NumCells())
	assert.Equal(t, c.ConnectedThreshold(), restored.ConnectedThreshold())
	assert.Equal(t, c.NumSegments(), restored.NumSegments())
	assert.Equal(t, c.NumSynapses(), restored.NumSynapses())
	assert.Equal(t, c.SegmentFlatListLength(), restored.SegmentFlatListLength())
	assert.Equal(t, c.SegmentsForCell(10), restored.SegmentsForCell(10))
	assert.Equal(t, c.SynapsesForSegment(seg1), restored.SynapsesForSegment(seg1))
	assert.Equal(t, c.NumConnectedSynapsesForSegment(seg1), restored.NumConnectedSynapsesForSegment(seg1))
	assert.Equal(t, c.NumConnectedSynapsesForSegment(seg2), restored.NumConnectedSynapsesForSegment(seg2))
	assert.False(t, restored.SegmentExists(destroyed))

	// activity computes identically through the rebuilt indices
	wantConnected, wantPotential := c.ComputeActivity([]int{0, 1, 2, 3}, false)
	gotConnected, gotPotential := restored.ComputeActivity([]int{0, 1, 2, 3}, false)
	assert.Equal(t, wantConnected, gotConnected)
	assert.Equal(t, wantPotential, gotPotential)
}

func TestConnectionsRoundTripReusesHandles(t *testing.T) {
	c, err := NewConnections(32, 0.5, false)
	assert.Nil(t, err)

	seg := c.CreateSegment(0, 0)
	syn := c.CreateSynapse(seg, 1, 0.4)
	c.DestroySynapse(syn)
	c.DestroySegment(seg)

	var buf bytes.Buffer
	assert.Nil(t, c.SaveTo(&buf))
	restored, err := LoadConnections(&buf)
	assert.Nil(t, err)

	// the free lists survive, so replayed construction reuses the same handles
	assert.Equal(t, c.CreateSegment(5, 0), restored.CreateSegment(5, 0))
	assert.Equal(t, c.CreateSynapse(seg, 2, 0.4), restored.CreateSynapse(seg, 2, 0.4))
}

func TestLoadConnectionsRejectsGarbage(t *testing.T) {
	_, err := LoadConnections(bytes.NewBufferString("not a snapshot"))
	assert.NotNil(t, err)

	_, err = LoadTemporalMemory(bytes.NewBufferString("not a snapshot"))
	assert.NotNil(t, err)
}

func TestTemporalMemoryRoundTrip(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	colsA := []int{1, 5, 9, 13}
	colsB := []int{2, 6, 10, 14}
	patternA := columnPattern(t, tm, colsA)
	patternB := columnPattern(t, tm, colsB)
	for i := 0; i < 5; i++ {
		tm.Reset()
		assert.Nil(t, tm.Compute(patternA, true))
		assert.Nil(t, tm.Compute(patternB, true))
	}

	var buf bytes.Buffer
	assert.Nil(t, tm.SaveTo(&buf))
	restored, err := LoadTemporalMemory(&buf)
	assert.Nil(t, err)

	assert.Equal(t, tm.NumberOfColumns(), restored.NumberOfColumns())
	assert.Equal(t, tm.Iteration(), restored.Iteration())
	assert.Equal(t, tm.Anomaly(), restored.Anomaly())
	assert.Equal(t, tm.ActiveCells(), restored.ActiveCells())
	assert.Equal(t, tm.WinnerCells(), restored.WinnerCells())
	assert.Equal(t, tm.LastPredictedColumns(), restored.LastPredictedColumns())
	assert.Equal(t, tm.Connections().NumSegments(), restored.Connections().NumSegments())
	assert.Equal(t, tm.Connections().NumSynapses(), restored.Connections().NumSynapses())
}

/*
 The load-bearing property: a restored instance and the original must
stay bit-for-bit identical through further learning.
*/
func TestTemporalMemoryRoundTripContinuesDeterministically(t *testing.T) {
	tm, err := NewTemporalMemory(testTemporalMemoryParams())
	assert.Nil(t, err)

	population := make([]int, tm.NumberOfColumns())
	for i := range population {
		population[i] = i
	}
	stream := NewRandom(3)
	for step := 0; step < 30; step++ {
		columns := stream.Sample(population, 5)
		sort.Ints(columns)
		assert.Nil(t, tm.Compute(columnPattern(t, tm, columns), true))
	}

	var buf bytes.Buffer
	assert.Nil(t, tm.SaveTo(&buf))
	restored, err := LoadTemporalMemory(&buf)
	assert.Nil(t, err)

	for step := 0; step < 30; step++ {
		columns := stream.Sample(population, 5)
		sort.Ints(columns)
		p1 := columnPattern(t, tm, columns)
		p2 := columnPattern(t, restored, columns)

		assert.Nil(t, tm.Compute(p1, true))
		assert.Nil(t, restored.Compute(p2, true))

		assert.Equal(t, tm.ActiveCells(), restored.ActiveCells(), "step %d", step)
		assert.Equal(t, tm.WinnerCells(), restored.WinnerCells(), "step %d", step)
		assert.Equal(t, tm.Anomaly(), restored.Anomaly(), "step %d", step)
	}
	assert.Equal(t, tm.Connections().NumSegments(), restored.Connections().NumSegments())
	assert.Equal(t, tm.Connections().NumSynapses(), restored.Connections().NumSynapses())
}
