package htm

import (
	"github.com/gonum/floats"
	"github.com/htm-community/htmcore/utils"
)

//Sentinel for "no anomaly computed yet". Valid scores live in [0,1], so
//any negative value is unambiguous.
const AnomalyUndefined = -1.0

/*
 Raw anomaly score: the fraction of currently active columns that had no
predictive cell on the previous step. 0 is a perfect prediction, 1 means
nothing was predicted. Both inputs are sorted ascending.
*/
func ComputeRawAnomalyScore(activeColumns []int, prevPredictedColumns []int) float64 {
	if len(activeColumns) == 0 {
		return 0.0
	}

	unpredicted := 0
	for _, column := range activeColumns {
		if !utils.ContainsIntSorted(column, prevPredictedColumns) {
			unpredicted++
		}
	}
	return float64(unpredicted) / float64(len(activeColumns))
}

/*
 Running smoother over raw anomaly scores. Keeps a sliding window of the
most recent scores and reports their mean, so single-step spikes on a
well-learned stream don't read as sustained anomaly. Undefined scores
are ignored.
*/
type AnomalyLikelihood struct {
	windowSize int
	scores     []float64
}

func NewAnomalyLikelihood(windowSize int) *AnomalyLikelihood {
	if windowSize <= 0 {
		windowSize = 10
	}
	al := new(AnomalyLikelihood)
	al.windowSize = windowSize
	return al
}

//Feeds one raw score and returns the current smoothed likelihood
func (al *AnomalyLikelihood) Add(score float64) float64 {
	if score < 0.0 {
		return al.Likelihood()
	}
	al.scores = append(al.scores, score)
	if len(al.scores) > al.windowSize {
		al.scores = al.scores[1:]
	}
	return al.Likelihood()
}

func (al *AnomalyLikelihood) Likelihood() float64 {
	if len(al.scores) == 0 {
		return AnomalyUndefined
	}
	return floats.Sum(al.scores) / float64(len(al.scores))
}

//Highest raw score currently in the window
func (al *AnomalyLikelihood) RecentMax() float64 {
	if len(al.scores) == 0 {
		return AnomalyUndefined
	}
	return floats.Max(al.scores)
}

func (al *AnomalyLikelihood) Reset() {
	al.scores = nil
}
