package model

import "fmt"

func (m *Model) compileLinear(e *Estimator) (func([]float64) float64, error) {
	weights := make([]float64, len(m.encoded))
	for name, w := range e.Weights {
		i, ok := m.index[name]
		if !ok {
			return nil, fmt.Errorf("linear weight for unknown feature `%s`", name)
		}
		weights[i] = w
	}
	intercept := e.Intercept

	return func(x []float64) float64 {
		y := intercept
		for i := range x {
			y += weights[i] * x[i]
		}
		return y
	}, nil
}

type compiledNode struct {
	feature   int // -1 for leaves
	threshold float64
	left      int
	right     int
	value     float64
}

func (m *Model) compileTrees(e *Estimator) (func([]float64) float64, error) {
	if len(e.Trees) < 1 {
		return nil, fmt.Errorf("tree estimator has no trees")
	}
	if e.LearningRate <= 0 {
		return nil, fmt.Errorf(
			"tree estimator learning rate must be positive; found `%v`",
			e.LearningRate,
		)
	}

	trees := make([][]compiledNode, len(e.Trees))
	for t, tree := range e.Trees {
		if len(tree.Nodes) < 1 {
			return nil, fmt.Errorf("tree `%d` has no nodes", t)
		}
		nodes := make([]compiledNode, len(tree.Nodes))
		for i := range tree.Nodes {
			n := &tree.Nodes[i]
			if n.leaf() {
				nodes[i] = compiledNode{feature: -1, value: n.Value}
				continue
			}
			feature, ok := m.index[n.Feature]
			if !ok {
				return nil, fmt.Errorf(
					"tree `%d` node `%d`: split on unknown feature `%s`",
					t,
					i,
					n.Feature,
				)
			}
			// children must come after their parent so evaluation always
			// terminates
			for _, child := range [...]int{n.Left, n.Right} {
				if child <= i || child >= len(tree.Nodes) {
					return nil, fmt.Errorf(
						"tree `%d` node `%d`: invalid child index `%d`",
						t,
						i,
						child,
					)
				}
			}
			nodes[i] = compiledNode{
				feature:   feature,
				threshold: n.Threshold,
				left:      n.Left,
				right:     n.Right,
			}
		}
		trees[t] = nodes
	}

	base, rate := e.BaseScore, e.LearningRate
	return func(x []float64) float64 {
		y := base
		for _, nodes := range trees {
			i := 0
			for nodes[i].feature >= 0 {
				if x[nodes[i].feature] <= nodes[i].threshold {
					i = nodes[i].left
				} else {
					i = nodes[i].right
				}
			}
			y += rate * nodes[i].value
		}
		return y
	}, nil
}
