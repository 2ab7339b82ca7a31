// Package regress implements the per-point completion regressor: a
// feed-forward encoder-decoder applied independently to every point of a
// cloud, mapping one 3D coordinate to one 3D coordinate through a 256-wide
// bottleneck representation.
//
// Each point is completed using only its own coordinates. There is no
// attention or convolution across points, so a forward pass over an N×3
// matrix is N independent row transforms and the model is indifferent to
// point ordering and cloud size.
package regress

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/cloudmend/internal/checkpoint"
)

// Arch is the immutable architecture descriptor: the layer widths of the
// encoder and decoder stages. The parameter values live in the Network.
type Arch struct {
	Widths []int
}

// DefaultArch returns the completion regressor architecture: encoder
// 3-64-128-256, decoder 256-128-64-3. ReLU follows every layer except the
// last, which stays linear because coordinates are unbounded.
func DefaultArch() Arch {
	return Arch{Widths: []int{3, 64, 128, 256, 128, 64, 3}}
}

// layerNames gives checkpoint-stable names to the six dense layers.
var layerNames = []string{"enc1", "enc2", "enc3", "dec1", "dec2", "dec3"}

// dense is one fully connected layer: out = act(in·W + b).
type dense struct {
	name string
	w    *mat.Dense    // in × out
	b    *mat.VecDense // out
	relu bool
}

// Network is the point regressor. Parameters are mutable state owned by the
// network; forward evaluation has no side effects unless a cache is
// requested for backpropagation.
type Network struct {
	arch   Arch
	layers []*dense
}

// New constructs a network for arch with He-initialised weights drawn from
// rng and zero biases. Pass a seeded rng for reproducible runs.
func New(arch Arch, rng *rand.Rand) (*Network, error) {
	if len(arch.Widths) < 2 {
		return nil, fmt.Errorf("architecture needs at least 2 widths, got %d", len(arch.Widths))
	}
	nLayers := len(arch.Widths) - 1
	if nLayers != len(layerNames) {
		return nil, fmt.Errorf("architecture has %d layers, want %d", nLayers, len(layerNames))
	}

	n := &Network{arch: arch}
	for l := 0; l < nLayers; l++ {
		in, out := arch.Widths[l], arch.Widths[l+1]
		w := mat.NewDense(in, out, nil)
		std := math.Sqrt(2.0 / float64(in))
		for i := 0; i < in; i++ {
			for j := 0; j < out; j++ {
				w.Set(i, j, rng.NormFloat64()*std)
			}
		}
		n.layers = append(n.layers, &dense{
			name: layerNames[l],
			w:    w,
			b:    mat.NewVecDense(out, nil),
			relu: l != nLayers-1, // final layer is linear
		})
	}
	return n, nil
}

// Arch returns the architecture descriptor.
func (n *Network) Arch() Arch { return n.arch }

// InputDim returns the expected input width.
func (n *Network) InputDim() int { return n.arch.Widths[0] }

// applyLayer computes z = x·W + b. x is N×in, result N×out.
func (l *dense) apply(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	_, out := l.w.Dims()
	z := mat.NewDense(rows, out, nil)
	z.Mul(x, l.w)
	for i := 0; i < rows; i++ {
		for j := 0; j < out; j++ {
			z.Set(i, j, z.At(i, j)+l.b.AtVec(j))
		}
	}
	return z
}

// reluInPlace rectifies z element-wise.
func reluInPlace(z *mat.Dense) {
	rows, cols := z.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if z.At(i, j) < 0 {
				z.Set(i, j, 0)
			}
		}
	}
}

// Forward runs an inference-mode pass: input N×3, output N×3, no state
// retained. The pass is deterministic.
func (n *Network) Forward(x *mat.Dense) (*mat.Dense, error) {
	_, cols := x.Dims()
	if cols != n.InputDim() {
		return nil, fmt.Errorf("input has %d columns, want %d", cols, n.InputDim())
	}
	h := x
	for _, l := range n.layers {
		z := l.apply(h)
		if l.relu {
			reluInPlace(z)
		}
		h = z
	}
	return h, nil
}

// forwardCache retains per-layer inputs and pre-activations for backward.
type forwardCache struct {
	inputs []*mat.Dense // input to each layer
	preact []*mat.Dense // z before the nonlinearity
	output *mat.Dense
}

// forwardWithCache runs a training-mode pass, recording the values backward
// needs.
func (n *Network) forwardWithCache(x *mat.Dense) (*forwardCache, error) {
	_, cols := x.Dims()
	if cols != n.InputDim() {
		return nil, fmt.Errorf("input has %d columns, want %d", cols, n.InputDim())
	}
	c := &forwardCache{}
	h := x
	for _, l := range n.layers {
		c.inputs = append(c.inputs, h)
		z := l.apply(h)
		var pre *mat.Dense
		if l.relu {
			pre = mat.DenseCopyOf(z)
			reluInPlace(z)
		}
		c.preact = append(c.preact, pre)
		h = z
	}
	c.output = h
	return c, nil
}

// layerGrads holds the gradient of the loss with respect to one layer's
// parameters.
type layerGrads struct {
	dW *mat.Dense
	dB *mat.VecDense
}

// backward propagates dOut (the gradient of the loss with respect to the
// network output) through the cached pass and returns per-layer parameter
// gradients in layer order.
func (n *Network) backward(c *forwardCache, dOut *mat.Dense) []layerGrads {
	grads := make([]layerGrads, len(n.layers))
	delta := dOut
	for l := len(n.layers) - 1; l >= 0; l-- {
		layer := n.layers[l]
		rows, cols := delta.Dims()

		// Gate the incoming gradient through the ReLU derivative.
		if layer.relu {
			pre := c.preact[l]
			gated := mat.NewDense(rows, cols, nil)
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					if pre.At(i, j) > 0 {
						gated.Set(i, j, delta.At(i, j))
					}
				}
			}
			delta = gated
		}

		in := c.inputs[l]
		inDim, outDim := layer.w.Dims()

		dW := mat.NewDense(inDim, outDim, nil)
		dW.Mul(in.T(), delta)

		dB := mat.NewVecDense(outDim, nil)
		for j := 0; j < outDim; j++ {
			sum := 0.0
			for i := 0; i < rows; i++ {
				sum += delta.At(i, j)
			}
			dB.SetVec(j, sum)
		}
		grads[l] = layerGrads{dW: dW, dB: dB}

		if l > 0 {
			next := mat.NewDense(rows, inDim, nil)
			next.Mul(delta, layer.w.T())
			delta = next
		}
	}
	return grads
}

// StateDict exports the parameter values as a checkpoint mapping. Weight
// tensors are row-major in×out; bias tensors are out×1.
func (n *Network) StateDict() checkpoint.Params {
	p := make(checkpoint.Params, 2*len(n.layers))
	for _, l := range n.layers {
		in, out := l.w.Dims()
		w := checkpoint.Tensor{Rows: in, Cols: out, Data: make([]float64, in*out)}
		copy(w.Data, l.w.RawMatrix().Data)
		p[l.name+".weight"] = w

		b := checkpoint.Tensor{Rows: out, Cols: 1, Data: make([]float64, out)}
		copy(b.Data, l.b.RawVector().Data)
		p[l.name+".bias"] = b
	}
	return p
}

// LoadStateDict replaces the network's parameters with the values in p.
// Every layer must be present with matching shape; no partial load happens
// on error.
func (n *Network) LoadStateDict(p checkpoint.Params) error {
	// Validate everything before touching any parameter.
	for _, l := range n.layers {
		in, out := l.w.Dims()
		w, ok := p[l.name+".weight"]
		if !ok {
			return fmt.Errorf("%w: missing tensor %q", checkpoint.ErrShapeMismatch, l.name+".weight")
		}
		if w.Rows != in || w.Cols != out {
			return fmt.Errorf("%w: tensor %q is %dx%d, want %dx%d",
				checkpoint.ErrShapeMismatch, l.name+".weight", w.Rows, w.Cols, in, out)
		}
		b, ok := p[l.name+".bias"]
		if !ok {
			return fmt.Errorf("%w: missing tensor %q", checkpoint.ErrShapeMismatch, l.name+".bias")
		}
		if b.Rows != out || b.Cols != 1 {
			return fmt.Errorf("%w: tensor %q is %dx%d, want %dx1",
				checkpoint.ErrShapeMismatch, l.name+".bias", b.Rows, b.Cols, out)
		}
	}
	for _, l := range n.layers {
		copy(l.w.RawMatrix().Data, p[l.name+".weight"].Data)
		copy(l.b.RawVector().Data, p[l.name+".bias"].Data)
	}
	return nil
}
