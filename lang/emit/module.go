package emit

import (
	"fmt"
	"math"

	"github.com/nilstack/stackvm/lang/ir"
	"github.com/nilstack/stackvm/lang/value"
	"github.com/nilstack/stackvm/lang/vm"
)

// LowerModule compiles each of m's items to its loadable form: literals
// and byte blobs pass through, cross-module references keep their target
// index for the loader's second resolution pass, and functions run the
// full lowering pipeline (block-scope analysis, emission, jump patching).
func LowerModule(m *ir.Module) ([]vm.ModuleItem, error) {
	items := make([]vm.ModuleItem, len(m.Items))
	for i, it := range m.Items {
		switch item := it.(type) {
		case ir.LiteralItem:
			items[i] = vm.ModuleItem{Kind: vm.ItemLiteral, Literal: item.Value}
		case ir.BufferItem:
			items[i] = vm.ModuleItem{Kind: vm.ItemBuffer, Buffer: item.Bytes}
		case ir.ModuleRefItem:
			if item.Index < 0 || uint64(item.Index) > math.MaxUint32 {
				return nil, fmt.Errorf("emit: module reference index %d out of range", item.Index)
			}
			items[i] = vm.ModuleItem{Kind: vm.ItemModuleRef, Ref: uint32(item.Index)}
		case ir.FunctionItem:
			code, err := LowerFunction(item.Fn)
			if err != nil {
				return nil, err
			}
			items[i] = vm.ModuleItem{Kind: vm.ItemFunction, Ops: &value.Ops{Code: code}}
		default:
			return nil, fmt.Errorf("emit: unknown module item type %T", it)
		}
	}
	return items, nil
}

// LowerProgram compiles every module of p, in order. The result is ready
// for vm.EncodeProgram or vm.LoadProgram.
func LowerProgram(p *ir.Program) ([][]vm.ModuleItem, error) {
	modules := make([][]vm.ModuleItem, len(p.Modules))
	for i, m := range p.Modules {
		items, err := LowerModule(m)
		if err != nil {
			return nil, err
		}
		modules[i] = items
	}
	return modules, nil
}
