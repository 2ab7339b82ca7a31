package regress

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam default hyperparameters.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Adam implements the adaptive moment estimation optimizer with bias
// correction. One Adam instance is bound to one network: the first and
// second moment buffers mirror the network's layer shapes.
type Adam struct {
	lr float64
	t  int // update count, drives bias correction

	mW, vW []*mat.Dense
	mB, vB []*mat.VecDense
}

// NewAdam returns an Adam optimizer for net with the given learning rate and
// zeroed moment buffers.
func NewAdam(net *Network, lr float64) *Adam {
	a := &Adam{lr: lr}
	for _, l := range net.layers {
		in, out := l.w.Dims()
		a.mW = append(a.mW, mat.NewDense(in, out, nil))
		a.vW = append(a.vW, mat.NewDense(in, out, nil))
		a.mB = append(a.mB, mat.NewVecDense(out, nil))
		a.vB = append(a.vB, mat.NewVecDense(out, nil))
	}
	return a
}

// LearningRate returns the configured step size.
func (a *Adam) LearningRate() float64 { return a.lr }

// step applies one Adam update to every parameter of net using grads.
func (a *Adam) step(net *Network, grads []layerGrads) {
	a.t++
	c1 := 1 - math.Pow(adamBeta1, float64(a.t))
	c2 := 1 - math.Pow(adamBeta2, float64(a.t))

	for l, layer := range net.layers {
		w := layer.w.RawMatrix().Data
		gw := grads[l].dW.RawMatrix().Data
		mw := a.mW[l].RawMatrix().Data
		vw := a.vW[l].RawMatrix().Data
		for i := range w {
			mw[i] = adamBeta1*mw[i] + (1-adamBeta1)*gw[i]
			vw[i] = adamBeta2*vw[i] + (1-adamBeta2)*gw[i]*gw[i]
			w[i] -= a.lr * (mw[i] / c1) / (math.Sqrt(vw[i]/c2) + adamEps)
		}

		b := layer.b.RawVector().Data
		gb := grads[l].dB.RawVector().Data
		mb := a.mB[l].RawVector().Data
		vb := a.vB[l].RawVector().Data
		for i := range b {
			mb[i] = adamBeta1*mb[i] + (1-adamBeta1)*gb[i]
			vb[i] = adamBeta2*vb[i] + (1-adamBeta2)*gb[i]*gb[i]
			b[i] -= a.lr * (mb[i] / c1) / (math.Sqrt(vb[i]/c2) + adamEps)
		}
	}
}
