package dual

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Dual is the policy+value network: a shared dense trunk feeding two heads,
// a softmax policy over the action space and a tanh-bounded scalar value.
// The weights are held as plain *tensor.Dense so a fresh gorgonia graph can
// be built around them on demand, at whatever batch size the caller needs
// (one row for Infer, Config.BatchSize rows for Train) without the trunk
// itself needing to know which mode it is in.
type Dual struct {
	conf Config

	w []*tensor.Dense // trunk weights, one per SharedLayers
	b []*tensor.Dense // trunk biases

	policyW, policyB *tensor.Dense
	valueW1, valueB1 *tensor.Dense
	valueW2, valueB2 *tensor.Dense
}

// New allocates a Dual for conf. Weights are zero until Init is called.
func New(conf Config) *Dual { return &Dual{conf: conf} }

// Dual implements Dualer: a network hands itself back.
func (d *Dual) Dual() *Dual { return d }

func inputDim(conf Config) int { return conf.Features * conf.Height * conf.Width }

func halfFC(conf Config) int {
	h := conf.FC / 2
	if h < 1 {
		h = 1
	}
	return h
}

// Init randomly initializes every weight/bias tensor (Xavier-ish uniform
// scaling), the gorgonia graphs themselves are built lazily per call by
// Infer and Train.
func (d *Dual) Init() error {
	if !d.conf.IsValid() {
		return errors.New("dual: invalid config")
	}
	in := inputDim(d.conf)
	half := halfFC(d.conf)

	d.w = make([]*tensor.Dense, d.conf.SharedLayers)
	d.b = make([]*tensor.Dense, d.conf.SharedLayers)
	prev := in
	for i := 0; i < d.conf.SharedLayers; i++ {
		d.w[i] = randDense(prev, d.conf.FC)
		d.b[i] = zeroDense(1, d.conf.FC)
		prev = d.conf.FC
	}

	d.policyW = randDense(d.conf.FC, d.conf.ActionSpace)
	d.policyB = zeroDense(1, d.conf.ActionSpace)
	d.valueW1 = randDense(d.conf.FC, half)
	d.valueB1 = zeroDense(1, half)
	d.valueW2 = randDense(half, 1)
	d.valueB2 = zeroDense(1, 1)
	return nil
}

func randDense(rows, cols int) *tensor.Dense {
	scale := float32(1 / math.Sqrt(float64(rows)))
	backing := make([]float32, rows*cols)
	for i := range backing {
		backing[i] = (rand.Float32()*2 - 1) * scale
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

func zeroDense(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(make([]float32, rows*cols)))
}

// dualGob is the on-disk shape used by GobEncode/GobDecode: Dual itself
// carries no gorgonia graph state, only tensors, but we still avoid handing
// gob the unexported fields directly so the wire shape stays stable if more
// derived (non-serialized) fields are added later.
type dualGob struct {
	Conf                             Config
	W, B                             []*tensor.Dense
	PolicyW, PolicyB                 *tensor.Dense
	ValueW1, ValueB1, ValueW2, ValueB2 *tensor.Dense
}

// GobEncode implements gob.GobEncoder (agogo.SaveAZ/Load persist *Dual this way).
func (d *Dual) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(dualGob{
		Conf: d.conf, W: d.w, B: d.b,
		PolicyW: d.policyW, PolicyB: d.policyB,
		ValueW1: d.valueW1, ValueB1: d.valueB1,
		ValueW2: d.valueW2, ValueB2: d.valueB2,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (d *Dual) GobDecode(data []byte) error {
	var dg dualGob
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&dg); err != nil {
		return err
	}
	d.conf, d.w, d.b = dg.Conf, dg.W, dg.B
	d.policyW, d.policyB = dg.PolicyW, dg.PolicyB
	d.valueW1, d.valueB1 = dg.ValueW1, dg.ValueB1
	d.valueW2, d.valueB2 = dg.ValueW2, dg.ValueB2
	return nil
}

// forward is a single-row (batch=1) evaluator bound to nn's current
// weights, returned by Infer. Agent pools several of these in a channel
// (agent.go SwitchToInference) so concurrent searches don't contend on one
// VM.
type forward struct {
	nn  *Dual
	g   *G.ExprGraph
	in  *G.Node
	pol *G.Node
	val *G.Node
	vm  G.VM

	debug bool
	log   bytes.Buffer
}

// Infer builds a forward-only graph snapshotting nn's current weight
// values. debug, when true, makes ExecLog return the tape machine's op
// trace on failure.
func Infer(nn *Dual, debug bool) (*forward, error) {
	g := G.NewGraph()
	dim := inputDim(nn.conf)

	in := G.NewMatrix(g, tensor.Float32, G.WithShape(1, dim), G.WithName("in"),
		G.WithValue(zeroDense(1, dim)))

	h := in
	for i := 0; i < nn.conf.SharedLayers; i++ {
		w := G.NewMatrix(g, tensor.Float32, G.WithShape(nn.w[i].Shape()[0], nn.w[i].Shape()[1]),
			G.WithValue(nn.w[i]), G.WithName(fmt.Sprintf("w%d", i)))
		b := G.NewMatrix(g, tensor.Float32, G.WithShape(1, nn.conf.FC),
			G.WithValue(nn.b[i]), G.WithName(fmt.Sprintf("b%d", i)))
		xw, err := G.Mul(h, w)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		xwb, err := G.Add(xw, b)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		h, err = G.Rectify(xwb)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	pw := G.NewMatrix(g, tensor.Float32, G.WithShape(nn.conf.FC, nn.conf.ActionSpace), G.WithValue(nn.policyW))
	pb := G.NewMatrix(g, tensor.Float32, G.WithShape(1, nn.conf.ActionSpace), G.WithValue(nn.policyB))
	pLogits, err := G.Mul(h, pw)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	pLogitsB, err := G.Add(pLogits, pb)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	pol, err := G.SoftMax(pLogitsB)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	half := halfFC(nn.conf)
	vw1 := G.NewMatrix(g, tensor.Float32, G.WithShape(nn.conf.FC, half), G.WithValue(nn.valueW1))
	vb1 := G.NewMatrix(g, tensor.Float32, G.WithShape(1, half), G.WithValue(nn.valueB1))
	vh, err := G.Mul(h, vw1)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	vhb, err := G.Add(vh, vb1)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	vhr, err := G.Rectify(vhb)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	vw2 := G.NewMatrix(g, tensor.Float32, G.WithShape(half, 1), G.WithValue(nn.valueW2))
	vb2 := G.NewMatrix(g, tensor.Float32, G.WithShape(1, 1), G.WithValue(nn.valueB2))
	vout, err := G.Mul(vhr, vw2)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	voutb, err := G.Add(vout, vb2)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	val, err := G.Tanh(voutb)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	vm := G.NewTapeMachine(g)
	return &forward{nn: nn, g: g, in: in, pol: pol, val: val, vm: vm, debug: debug}, nil
}

// Infer implements agogo.Inferer.
func (f *forward) Infer(a []float32) (policy []float32, value float32, err error) {
	t := tensor.New(tensor.WithShape(1, len(a)), tensor.WithBacking(a))
	if err = G.Let(f.in, t); err != nil {
		return nil, 0, errors.WithStack(err)
	}
	if err = f.vm.RunAll(); err != nil {
		if f.debug {
			fmt.Fprintf(&f.log, "infer failed: %+v\n%v\n", err, f.vm)
		}
		return nil, 0, errors.WithStack(err)
	}
	defer f.vm.Reset()

	policy = make([]float32, len(f.pol.Value().Data().([]float32)))
	copy(policy, f.pol.Value().Data().([]float32))
	value = f.val.Value().Data().([]float32)[0]
	return policy, value, nil
}

// ExecLog implements agogo.ExecLogger.
func (f *forward) ExecLog() string { return f.log.String() }

// Close implements io.Closer.
func (f *forward) Close() error { return f.vm.Close() }

var _ io.Closer = (*forward)(nil)

// sliceRange is a minimal tensor.Slice over rows [start, end).
type sliceRange struct{ start, end int }

func (s sliceRange) Start() int { return s.start }
func (s sliceRange) End() int   { return s.end }
func (s sliceRange) Step() int  { return 1 }

// Train runs `iters` epochs of minibatch gradient descent over
// `batches` full batches of size nn.conf.BatchSize drawn from xs/policies/
// values (each row-major with batches*BatchSize rows), updating nn's
// weights in place via an Adam solver.
func Train(nn *Dual, xs, policies, values *tensor.Dense, batches, iters int) error {
	g := G.NewGraph()
	batchSize := nn.conf.BatchSize
	dim := inputDim(nn.conf)
	half := halfFC(nn.conf)

	in := G.NewMatrix(g, tensor.Float32, G.WithShape(batchSize, dim), G.WithName("in"))
	targetPolicy := G.NewMatrix(g, tensor.Float32, G.WithShape(batchSize, nn.conf.ActionSpace), G.WithName("targetPolicy"))
	targetValue := G.NewMatrix(g, tensor.Float32, G.WithShape(batchSize, 1), G.WithName("targetValue"))

	ws := make([]*G.Node, nn.conf.SharedLayers)
	bs := make([]*G.Node, nn.conf.SharedLayers)
	h := in
	for i := 0; i < nn.conf.SharedLayers; i++ {
		ws[i] = G.NewMatrix(g, tensor.Float32, G.WithShape(nn.w[i].Shape()[0], nn.w[i].Shape()[1]),
			G.WithValue(nn.w[i]), G.WithName(fmt.Sprintf("w%d", i)))
		bs[i] = G.NewMatrix(g, tensor.Float32, G.WithShape(1, nn.conf.FC),
			G.WithValue(nn.b[i]), G.WithName(fmt.Sprintf("b%d", i)))
		xw, err := G.Mul(h, ws[i])
		if err != nil {
			return errors.WithStack(err)
		}
		xwb, err := G.BroadcastAdd(xw, bs[i], nil, []byte{0})
		if err != nil {
			return errors.WithStack(err)
		}
		h, err = G.Rectify(xwb)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	pw := G.NewMatrix(g, tensor.Float32, G.WithShape(nn.conf.FC, nn.conf.ActionSpace), G.WithValue(nn.policyW))
	pb := G.NewMatrix(g, tensor.Float32, G.WithShape(1, nn.conf.ActionSpace), G.WithValue(nn.policyB))
	pLogits, err := G.Mul(h, pw)
	if err != nil {
		return errors.WithStack(err)
	}
	pLogitsB, err := G.BroadcastAdd(pLogits, pb, nil, []byte{0})
	if err != nil {
		return errors.WithStack(err)
	}
	policyOut, err := G.SoftMax(pLogitsB)
	if err != nil {
		return errors.WithStack(err)
	}

	vw1 := G.NewMatrix(g, tensor.Float32, G.WithShape(nn.conf.FC, half), G.WithValue(nn.valueW1))
	vb1 := G.NewMatrix(g, tensor.Float32, G.WithShape(1, half), G.WithValue(nn.valueB1))
	vh, err := G.Mul(h, vw1)
	if err != nil {
		return errors.WithStack(err)
	}
	vhb, err := G.BroadcastAdd(vh, vb1, nil, []byte{0})
	if err != nil {
		return errors.WithStack(err)
	}
	vhr, err := G.Rectify(vhb)
	if err != nil {
		return errors.WithStack(err)
	}

	vw2 := G.NewMatrix(g, tensor.Float32, G.WithShape(half, 1), G.WithValue(nn.valueW2))
	vb2 := G.NewMatrix(g, tensor.Float32, G.WithShape(1, 1), G.WithValue(nn.valueB2))
	vout, err := G.Mul(vhr, vw2)
	if err != nil {
		return errors.WithStack(err)
	}
	voutb, err := G.BroadcastAdd(vout, vb2, nil, []byte{0})
	if err != nil {
		return errors.WithStack(err)
	}
	valueOut, err := G.Tanh(voutb)
	if err != nil {
		return errors.WithStack(err)
	}

	polDiff, err := G.Sub(policyOut, targetPolicy)
	if err != nil {
		return errors.WithStack(err)
	}
	polSq, err := G.Square(polDiff)
	if err != nil {
		return errors.WithStack(err)
	}
	policyLoss, err := G.Mean(polSq)
	if err != nil {
		return errors.WithStack(err)
	}

	valDiff, err := G.Sub(valueOut, targetValue)
	if err != nil {
		return errors.WithStack(err)
	}
	valSq, err := G.Square(valDiff)
	if err != nil {
		return errors.WithStack(err)
	}
	valueLoss, err := G.Mean(valSq)
	if err != nil {
		return errors.WithStack(err)
	}

	loss, err := G.Add(policyLoss, valueLoss)
	if err != nil {
		return errors.WithStack(err)
	}

	learnables := make(G.Nodes, 0, 2*nn.conf.SharedLayers+6)
	for i := range ws {
		learnables = append(learnables, ws[i], bs[i])
	}
	learnables = append(learnables, pw, pb, vw1, vb1, vw2, vb2)

	if _, err := G.Grad(loss, learnables...); err != nil {
		return errors.WithStack(err)
	}

	vm := G.NewTapeMachine(g, G.BindDualValues(learnables...))
	defer vm.Close()
	solver := G.NewAdamSolver(G.WithLearnRate(1e-3))

	for iter := 0; iter < iters; iter++ {
		for b := 0; b < batches; b++ {
			xb, err := xs.Slice(sliceRange{b * batchSize, (b + 1) * batchSize})
			if err != nil {
				return errors.WithStack(err)
			}
			pb_, err := policies.Slice(sliceRange{b * batchSize, (b + 1) * batchSize})
			if err != nil {
				return errors.WithStack(err)
			}
			vb_, err := values.Slice(sliceRange{b * batchSize, (b + 1) * batchSize})
			if err != nil {
				return errors.WithStack(err)
			}
			if err = G.Let(in, xb); err != nil {
				return errors.WithStack(err)
			}
			if err = G.Let(targetPolicy, pb_); err != nil {
				return errors.WithStack(err)
			}
			if err = G.Let(targetValue, vb_); err != nil {
				return errors.WithStack(err)
			}
			if err = vm.RunAll(); err != nil {
				return errors.WithStack(err)
			}
			if err = solver.Step(G.NodesToValueGrads(learnables)); err != nil {
				return errors.WithStack(err)
			}
			vm.Reset()
		}
	}
	return nil
}
