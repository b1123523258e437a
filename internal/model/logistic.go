// Package model implements the fraud classifier: an L2-regularized
// logistic regression trained by batch gradient descent, with feature
// standardization folded into the fitted weights' input scaling.
package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"fraudlens/internal/config"
)

// ErrNotTrained is returned when prediction runs before a Fit.
var ErrNotTrained = errors.New("model is not trained")

// Classifier is a binary logistic regression. Inputs are standardized
// with statistics captured at fit time, so raw sentinel-coded features
// keep the optimization numerically stable.
type Classifier struct {
	Trained bool

	Weights []float64
	Bias    float64

	FeatureMeans []float64
	FeatureStds  []float64

	LearningRate float64
	Epochs       int
	L2           float64
}

// NewClassifier builds an untrained classifier from training config.
func NewClassifier(cfg config.TrainingConfig) *Classifier {
	return &Classifier{
		LearningRate: cfg.LearningRate,
		Epochs:       cfg.Epochs,
		L2:           cfg.L2,
	}
}

// Fit trains by full-batch gradient descent on the cross-entropy loss
// with L2 on the weights (not the bias).
func (c *Classifier) Fit(x *mat.Dense, y []float64) error {
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return fmt.Errorf("fit requires a non-empty matrix, got %dx%d", n, p)
	}
	if len(y) != n {
		return fmt.Errorf("label count %d does not match %d rows", len(y), n)
	}

	c.fitScaling(x)
	scaled := c.scale(x)

	c.Weights = make([]float64, p)
	c.Bias = 0

	grad := make([]float64, p)
	for epoch := 0; epoch < c.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var biasGrad float64
		for i := 0; i < n; i++ {
			row := scaled.RawRowView(i)
			z := c.Bias
			for j, w := range c.Weights {
				z += w * row[j]
			}
			err := sigmoid(z) - y[i]
			for j := range grad {
				grad[j] += err * row[j]
			}
			biasGrad += err
		}
		inv := 1 / float64(n)
		for j := range c.Weights {
			c.Weights[j] -= c.LearningRate * (grad[j]*inv + c.L2*c.Weights[j])
		}
		c.Bias -= c.LearningRate * biasGrad * inv
	}

	c.Trained = true
	return nil
}

// PredictProba returns the fraud probability for each row.
func (c *Classifier) PredictProba(x *mat.Dense) ([]float64, error) {
	if !c.Trained {
		return nil, ErrNotTrained
	}
	n, p := x.Dims()
	if p != len(c.Weights) {
		return nil, fmt.Errorf("input has %d features, model expects %d", p, len(c.Weights))
	}
	scaled := c.scale(x)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := scaled.RawRowView(i)
		z := c.Bias
		for j, w := range c.Weights {
			z += w * row[j]
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}

// Predict returns hard labels at the 0.5 threshold.
func (c *Classifier) Predict(x *mat.Dense) ([]uint8, error) {
	probs, err := c.PredictProba(x)
	if err != nil {
		return nil, err
	}
	labels := make([]uint8, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// NumFeatures reports the fitted input width.
func (c *Classifier) NumFeatures() int { return len(c.Weights) }

// Save persists the trained model to a gob file.
func (c *Classifier) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(c); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a trained model from a gob file.
func Load(path string) (*Classifier, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	var c Classifier
	if err := gob.NewDecoder(file).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &c, nil
}

func (c *Classifier) fitScaling(x *mat.Dense) {
	n, p := x.Dims()
	c.FeatureMeans = make([]float64, p)
	c.FeatureStds = make([]float64, p)
	for j := 0; j < p; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x.At(i, j)
		}
		mean := sum / float64(n)
		var ss float64
		for i := 0; i < n; i++ {
			d := x.At(i, j) - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(n))
		if std == 0 {
			std = 1
		}
		c.FeatureMeans[j] = mean
		c.FeatureStds[j] = std
	}
}

func (c *Classifier) scale(x *mat.Dense) *mat.Dense {
	n, p := x.Dims()
	out := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			out.Set(i, j, (x.At(i, j)-c.FeatureMeans[j])/c.FeatureStds[j])
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
