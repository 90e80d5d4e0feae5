package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// registry holds every module compiled into the binary. Modules add
// themselves from init functions through RegisterModule.
var registry = struct {
	sync.RWMutex
	modules map[string]ModuleInfo
}{modules: make(map[string]ModuleInfo)}

// RegisterModule records the ModuleInfo of instance. It panics on an empty
// ID, a nil constructor or a duplicate ID.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.modules[string(info.ID)]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	registry.modules[string(info.ID)] = info
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.modules[id]
	return info, ok
}

// GetModules returns every registered module ordered by ID.
func GetModules() []ModuleInfo {
	return filterModules(func(ModuleInfo) bool { return true })
}

// GetModulesByNamespace returns the modules of one namespace ordered by ID,
// e.g. "store" yields store.bolt and store.sqlite.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return filterModules(func(info ModuleInfo) bool { return info.ID.Namespace() == namespace })
}

func filterModules(keep func(ModuleInfo) bool) []ModuleInfo {
	registry.RLock()
	out := make([]ModuleInfo, 0, len(registry.modules))
	for _, info := range registry.modules {
		if keep(info) {
			out = append(out, info)
		}
	}
	registry.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
