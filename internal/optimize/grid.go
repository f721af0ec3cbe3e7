package optimize

import (
	"fmt"
	"sort"

	"marlin/internal/strategy"
)

// Range 描述一个整数参数轴, 语义与半开区间 [Start, End) 一致,
// 按 Step 递增。End 本身不会被枚举。
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
	Step  int `json:"step" yaml:"step"`
}

// Values 展开区间内的全部取值。Step 缺省为 1。
func (r Range) Values() []int {
	step := r.Step
	if step <= 0 {
		step = 1
	}
	var out []int
	for v := r.Start; v < r.End; v += step {
		out = append(out, v)
	}
	return out
}

// Axis 是一个参数维度: 要么给定整数区间, 要么给定显式取值列表。
type Axis struct {
	Range  *Range        `json:"range,omitempty" yaml:"range,omitempty"`
	Values []interface{} `json:"values,omitempty" yaml:"values,omitempty"`
}

func (a Axis) values() ([]interface{}, error) {
	if a.Range != nil {
		ints := a.Range.Values()
		if len(ints) == 0 {
			return nil, fmt.Errorf("整数区间为空: [%d, %d) step %d", a.Range.Start, a.Range.End, a.Range.Step)
		}
		out := make([]interface{}, len(ints))
		for i, v := range ints {
			out[i] = v
		}
		return out, nil
	}
	if len(a.Values) > 0 {
		return a.Values, nil
	}
	return nil, fmt.Errorf("参数轴为空: 需要 range 或 values")
}

// Grid 是参数名到参数轴的映射。
type Grid map[string]Axis

// Expand 枚举网格的全部组合。参数名按字典序排列,
// 组合顺序确定, 同一网格多次展开结果一致。
func (g Grid) Expand() ([]strategy.Params, error) {
	if len(g) == 0 {
		return nil, fmt.Errorf("参数网格不能为空")
	}
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)

	axes := make([][]interface{}, len(names))
	total := 1
	for i, name := range names {
		vals, err := g[name].values()
		if err != nil {
			return nil, fmt.Errorf("参数 %s: %w", name, err)
		}
		axes[i] = vals
		total *= len(vals)
	}

	combos := make([]strategy.Params, 0, total)
	indices := make([]int, len(names))
	for {
		p := make(strategy.Params, len(names))
		for i, name := range names {
			p[name] = axes[i][indices[i]]
		}
		combos = append(combos, p)

		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < len(axes[pos]) {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return combos, nil
		}
	}
}
