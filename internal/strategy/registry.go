package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Factory 根据参数构造策略实例；params 可为 nil。
type Factory func(params map[string]any) (Strategy, error)

// Registry 将稳定的策略 ID 映射到构造函数，调用方不再按名字分支。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	params    map[string]map[string]any
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		params:    make(map[string]map[string]any),
	}
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (r *Registry) Register(id string, f Factory) error {
	id = normalizeID(id)
	if id == "" || f == nil {
		return fmt.Errorf("strategy registry: id and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[id]; dup {
		return fmt.Errorf("strategy registry: %s already registered", id)
	}
	r.factories[id] = f
	return nil
}

// Configure 设置某策略的默认参数，New 时传给构造函数。
func (r *Registry) Configure(id string, params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params[normalizeID(id)] = params
}

func (r *Registry) New(id string) (Strategy, error) {
	key := normalizeID(id)
	r.mu.RLock()
	f, ok := r.factories[key]
	params := r.params[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("build strategy %s: %w", key, err)
	}
	return s, nil
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[normalizeID(id)]
	return ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RegisterBuiltins 注册内置参考策略。
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]Factory{
		EMACrossoverID:  NewEMACrossover,
		RSIReversionID:  NewRSIReversion,
		RangeBreakoutID: NewRangeBreakout,
	}
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.Register(id, builtins[id]); err != nil {
			return err
		}
	}
	return nil
}

func decodeParams(params map[string]any, dst any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}
