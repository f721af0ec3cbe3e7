package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Factory 描述一个已注册的策略变体：构造函数、参数缺省值与参数 JSON Schema。
// 新增变体通过 Register 挂入，而不是反射扫描。
type Factory struct {
	Name        string
	Description string
	Defaults    Params
	Schema      string
	New         func(p Params) (Engine, error)

	schemaCompiled *jsonschema.Schema
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册策略变体，重名视为编程错误直接 panic。
func Register(f Factory) {
	name := strings.ToLower(strings.TrimSpace(f.Name))
	if name == "" {
		panic("strategy: Register 需要 name")
	}
	if f.New == nil {
		panic(fmt.Sprintf("strategy: %s 缺少构造函数", name))
	}
	if f.Schema != "" {
		compiled, err := compileSchema(f.Schema)
		if err != nil {
			panic(fmt.Sprintf("strategy: %s schema 编译失败: %v", name, err))
		}
		f.schemaCompiled = compiled
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategy: %s 重复注册", name))
	}
	f.Name = name
	registry[name] = f
}

// Lookup 查找已注册变体。
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Names 返回全部已注册名称（排序后）。
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build 合并缺省参数后构造引擎实例。
func (f Factory) Build(override Params) (Engine, error) {
	return f.New(Merge(f.Defaults, override))
}

// ValidateParams 用 schema 校验参数集合（未配置 schema 时直接放行）。
func (f Factory) ValidateParams(params Params) error {
	if f.schemaCompiled == nil {
		return nil
	}
	// schema 校验要求 JSON 原生类型，round-trip 规整 int 等 Go 类型
	raw, err := json.Marshal(map[string]any(params))
	if err != nil {
		return fmt.Errorf("策略 %s 参数无法序列化: %w", f.Name, err)
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return fmt.Errorf("策略 %s 参数无法序列化: %w", f.Name, err)
	}
	if err := f.schemaCompiled.Validate(plain); err != nil {
		return fmt.Errorf("策略 %s 参数非法: %w", f.Name, err)
	}
	return nil
}

// ParseParamsJSON 解析外部提交的参数 JSON（HTTP API 等），
// 先做宽松结构检查再走 schema 校验。
func (f Factory) ParseParamsJSON(raw []byte) (Params, error) {
	if len(raw) == 0 {
		return Params{}, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("参数不是合法 JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("参数根节点必须是 JSON 对象")
	}
	params := make(Params)
	parsed.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.Number:
			params[key.String()] = value.Float()
		case gjson.String:
			params[key.String()] = value.String()
		default:
			params[key.String()] = value.Value()
		}
		return true
	})
	if err := f.ValidateParams(Merge(f.Defaults, params)); err != nil {
		return nil, err
	}
	return params, nil
}

func compileSchema(raw string) (*jsonschema.Schema, error) {
	// round-trip 确认是合法 JSON，避免把 YAML 误当 schema
	var probe map[string]any
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}
