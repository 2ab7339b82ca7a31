package regress

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MSE returns the pointwise mean-squared-error between pred and target: the
// mean of squared coordinate differences over all rows and columns. The two
// matrices must have identical shape.
func MSE(pred, target *mat.Dense) (float64, error) {
	pr, pc := pred.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return 0, fmt.Errorf("prediction is %dx%d but target is %dx%d", pr, pc, tr, tc)
	}
	sum := 0.0
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			d := pred.At(i, j) - target.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(pr*pc), nil
}

// mseGrad returns dL/dpred for the MSE loss: 2(pred-target)/(rows*cols).
func mseGrad(pred, target *mat.Dense) *mat.Dense {
	rows, cols := pred.Dims()
	g := mat.NewDense(rows, cols, nil)
	scale := 2.0 / float64(rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g.Set(i, j, scale*(pred.At(i, j)-target.At(i, j)))
		}
	}
	return g
}

// Loss runs an inference-mode forward pass and returns the MSE against
// target. No parameter or optimizer state is touched.
func (n *Network) Loss(x, target *mat.Dense) (float64, error) {
	pred, err := n.Forward(x)
	if err != nil {
		return 0, err
	}
	return MSE(pred, target)
}

// TrainStep runs one optimization step on a single (input, target) pair:
// forward with gradient caching, MSE, backpropagation, and one optimizer
// update over every parameter. Returns the pre-update loss.
func (n *Network) TrainStep(x, target *mat.Dense, opt *Adam) (float64, error) {
	cache, err := n.forwardWithCache(x)
	if err != nil {
		return 0, err
	}
	loss, err := MSE(cache.output, target)
	if err != nil {
		return 0, err
	}
	grads := n.backward(cache, mseGrad(cache.output, target))
	opt.step(n, grads)
	return loss, nil
}
