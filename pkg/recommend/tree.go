package recommend

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/solarplanner/solarplanner/pkg/types"
)

// ErrInsufficientHistory is returned when a device has too few cycles to
// train a model.
var ErrInsufficientHistory = errors.New("not enough cycle history to train")

// CurrentArtifactVersion is bumped whenever the serialized tree layout
// changes.
const CurrentArtifactVersion = 1

const numFeatures = 4

// TrainConfig controls ensemble training.
type TrainConfig struct {
	Trees          int
	MaxDepth       int
	LearningRate   float64
	MinSamplesLeaf int
}

// DefaultTrainConfig returns the config used when retraining isn't
// customized.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Trees:          50,
		MaxDepth:       3,
		LearningRate:   0.1,
		MinSamplesLeaf: 2,
	}
}

// treeNode is one node of a regression tree. Leaves have Left == -1.
type treeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// TreeEnsemble is a gradient-boosted ensemble of shallow regression trees
// trained to predict how likely a device run is in a given slot. The whole
// model serializes to JSON so it can be persisted and reloaded across
// restarts.
type TreeEnsemble struct {
	Version      int              `json:"version"`
	Device       types.DeviceID   `json:"device"`
	TrainedAt    time.Time        `json:"trained_at"`
	Bias         float64          `json:"bias"`
	LearningRate float64          `json:"learning_rate"`
	Trees        []regressionTree `json:"trees"`
	Samples      int              `json:"samples"`
}

// Score implements Model.
func (e *TreeEnsemble) Score(f Features) float64 {
	x := featureVector(f)
	pred := e.Bias
	for i := range e.Trees {
		pred += e.LearningRate * e.Trees[i].predict(x)
	}
	if pred < 0 {
		return 0
	}
	return pred
}

// Marshal serializes the trained model.
func (e *TreeEnsemble) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnsemble loads a previously trained model.
func UnmarshalEnsemble(b []byte) (*TreeEnsemble, error) {
	var e TreeEnsemble
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("error decoding model artifact: %w", err)
	}
	if e.Version != CurrentArtifactVersion {
		return nil, fmt.Errorf("unsupported model artifact version: %d", e.Version)
	}
	return &e, nil
}

func featureVector(f Features) []float64 {
	return []float64{
		f.HabitStrength,
		f.SolarSurplus,
		float64(f.Weekday),
		float64(f.Hour),
	}
}

// trainingGrid builds one sample per (weekday, hour) slot. The label is 1
// when the device has ever run in that slot, 0 otherwise. Surplus features
// come from the average forecast shape for the hour so the model learns the
// daylight preference rather than one particular day.
func trainingGrid(set habitSource, surplusByHour [24]float64) (xs [][]float64, ys []float64) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		for hour := 0; hour < 24; hour++ {
			f := Features{
				HabitStrength: set.HabitStrength(wd, hour),
				SolarSurplus:  surplusByHour[hour],
				Weekday:       wd,
				Hour:          hour,
			}
			label := 0.0
			if f.HabitStrength > 0 {
				label = 1.0
			}
			xs = append(xs, featureVector(f))
			ys = append(ys, label)
		}
	}
	return xs, ys
}

// habitSource is the slice of the pattern set training needs.
type habitSource interface {
	HabitStrength(wd time.Weekday, hour int) float64
	TotalCycles() int
}

// Train fits an ensemble for the device from its mined habit grid and the
// average hourly solar surplus. It returns ErrInsufficientHistory when the
// device has fewer than minCycles observed cycles.
func Train(device types.DeviceID, set habitSource, surplusByHour [24]float64, minCycles int, cfg TrainConfig) (*TreeEnsemble, error) {
	if set == nil || set.TotalCycles() < minCycles {
		return nil, ErrInsufficientHistory
	}

	xs, ys := trainingGrid(set, surplusByHour)

	var bias float64
	for _, y := range ys {
		bias += y
	}
	bias /= float64(len(ys))

	residuals := make([]float64, len(ys))
	for i := range ys {
		residuals[i] = ys[i] - bias
	}

	e := &TreeEnsemble{
		Version:      CurrentArtifactVersion,
		Device:       device,
		TrainedAt:    time.Now().UTC(),
		Bias:         bias,
		LearningRate: cfg.LearningRate,
		Samples:      len(ys),
	}

	for m := 0; m < cfg.Trees; m++ {
		t := fitTree(xs, residuals, cfg.MaxDepth, cfg.MinSamplesLeaf)
		for i := range residuals {
			residuals[i] -= cfg.LearningRate * t.predict(xs[i])
		}
		e.Trees = append(e.Trees, t)
	}

	return e, nil
}

// fitTree greedily grows one depth-limited regression tree minimizing
// squared error against the residuals.
func fitTree(xs [][]float64, ys []float64, maxDepth, minLeaf int) regressionTree {
	var t regressionTree
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	growNode(&t, xs, ys, idx, maxDepth, minLeaf)
	return t
}

// growNode appends the subtree for idx and returns its node index.
func growNode(t *regressionTree, xs [][]float64, ys []float64, idx []int, depth, minLeaf int) int {
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, treeNode{Left: -1, Right: -1, Value: mean(ys, idx)})

	if depth == 0 || len(idx) < 2*minLeaf {
		return self
	}

	feature, threshold, ok := bestSplit(xs, ys, idx, minLeaf)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if xs[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	t.Nodes[self].Feature = feature
	t.Nodes[self].Threshold = threshold
	t.Nodes[self].Left = growNode(t, xs, ys, left, depth-1, minLeaf)
	t.Nodes[self].Right = growNode(t, xs, ys, right, depth-1, minLeaf)
	return self
}

// bestSplit scans every feature and candidate threshold for the split with
// the lowest weighted squared error.
func bestSplit(xs [][]float64, ys []float64, idx []int, minLeaf int) (feature int, threshold float64, ok bool) {
	best := math.Inf(1)
	for f := 0; f < numFeatures; f++ {
		seen := map[float64]bool{}
		var values []float64
		for _, i := range idx {
			if !seen[xs[i][f]] {
				seen[xs[i][f]] = true
				values = append(values, xs[i][f])
			}
		}
		sort.Float64s(values)
		for _, v := range values {
			var left, right []int
			for _, i := range idx {
				if xs[i][f] <= v {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			if len(left) < minLeaf || len(right) < minLeaf {
				continue
			}
			err := sse(ys, left) + sse(ys, right)
			if err < best {
				best = err
				feature = f
				threshold = v
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func mean(ys []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += ys[i]
	}
	return sum / float64(len(idx))
}

func sse(ys []float64, idx []int) float64 {
	m := mean(ys, idx)
	var sum float64
	for _, i := range idx {
		d := ys[i] - m
		sum += d * d
	}
	return sum
}

var _ Model = (*TreeEnsemble)(nil)
