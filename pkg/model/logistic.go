package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	logisticMaxIterDefault = 100
	logisticGradTolerance  = 1e-4
)

// LogisticRegression is an L2-regularized logistic regression fit with
// L-BFGS. C is the inverse regularization strength; the intercept is not
// penalized. Balanced weighs each class by n / (2 * n_class).
type LogisticRegression struct {
	C        float64
	MaxIter  int
	Balanced bool
}

// LogisticModel is a fitted logistic regression.
type LogisticModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (l *LogisticRegression) Fit(x *mat.Dense, y []int) (Model[*mat.Dense], error) {
	rows, cols, err := checkFit(x, y)
	if err != nil {
		return nil, err
	}

	c := l.C
	if c <= 0 {
		c = 1
	}
	maxIter := l.MaxIter
	if maxIter <= 0 {
		maxIter = logisticMaxIterDefault
	}

	target := make([]float64, rows)
	weights := make([]float64, rows)
	var pos float64
	for i, v := range y {
		target[i] = float64(v)
		pos += target[i]
	}
	for i := range weights {
		weights[i] = 1
		if l.Balanced {
			n := float64(rows)
			if y[i] == 1 {
				weights[i] = n / (2 * pos)
			} else {
				weights[i] = n / (2 * (n - pos))
			}
		}
	}

	obj := &logisticObjective{
		x:       x,
		y:       target,
		w:       weights,
		c:       c,
		cols:    cols,
		z:       mat.NewVecDense(rows, nil),
		resid:   mat.NewVecDense(rows, nil),
		gradBuf: mat.NewVecDense(cols, nil),
	}

	problem := optimize.Problem{
		Func: obj.loss,
		Grad: obj.grad,
	}
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: logisticGradTolerance,
	}

	res, err := optimize.Minimize(problem, make([]float64, cols+1), settings, &optimize.LBFGS{})
	if res == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return nil, fmt.Errorf("error fitting logistic regression: %w", err)
	}
	if err != nil {
		// the best location found is still usable
		slog.Debug("logistic regression stopped early", "status", res.Status, "error", err)
	}
	if floats.HasNaN(res.X) {
		return nil, errors.New("logistic regression diverged")
	}

	slog.Debug("logistic regression fitted", "iterations", res.Stats.MajorIterations, "loss", res.F)

	return &LogisticModel{
		Weights:   append([]float64(nil), res.X[:cols]...),
		Intercept: res.X[cols],
	}, nil
}

// logisticObjective evaluates 0.5*|w|^2 + C * sum_i s_i * logloss_i over
// params = [w..., b].
type logisticObjective struct {
	x       *mat.Dense
	y       []float64
	w       []float64
	c       float64
	cols    int
	z       *mat.VecDense
	resid   *mat.VecDense
	gradBuf *mat.VecDense
}

func (o *logisticObjective) margins(params []float64) {
	coef := mat.NewVecDense(o.cols, params[:o.cols])
	o.z.MulVec(o.x, coef)
	b := params[o.cols]
	for i := range o.y {
		o.z.SetVec(i, o.z.AtVec(i)+b)
	}
}

func (o *logisticObjective) loss(params []float64) float64 {
	o.margins(params)
	var ll float64
	for i, y := range o.y {
		z := o.z.AtVec(i)
		if y == 1 {
			ll += o.w[i] * softplus(-z)
		} else {
			ll += o.w[i] * softplus(z)
		}
	}
	reg := 0.5 * floats.Dot(params[:o.cols], params[:o.cols])
	return reg + o.c*ll
}

func (o *logisticObjective) grad(grad, params []float64) {
	o.margins(params)
	var sum float64
	for i, y := range o.y {
		r := o.c * o.w[i] * (sigmoid(o.z.AtVec(i)) - y)
		o.resid.SetVec(i, r)
		sum += r
	}
	o.gradBuf.MulVec(o.x.T(), o.resid)
	for j := 0; j < o.cols; j++ {
		grad[j] = o.gradBuf.AtVec(j) + params[j]
	}
	grad[o.cols] = sum
}

func (m *LogisticModel) PredictProba(x *mat.Dense) ([]float64, error) {
	if x == nil {
		return nil, errors.New("input matrix required")
	}
	rows, cols := x.Dims()
	if cols != len(m.Weights) {
		return nil, fmt.Errorf("input has %d features, model expects %d", cols, len(m.Weights))
	}
	z := mat.NewVecDense(rows, nil)
	z.MulVec(x, mat.NewVecDense(cols, m.Weights))
	out := make([]float64, rows)
	for i := range out {
		out[i] = sigmoid(z.AtVec(i) + m.Intercept)
	}
	return out, nil
}

func (m *LogisticModel) validate() error {
	if len(m.Weights) == 0 {
		return errors.New("no weights")
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus returns log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
