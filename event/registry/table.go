package registry

import (
	"fmt"
	"io"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/events/event/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// tableFile is the serialized form of a binding table.
type tableFile struct {
	Version  int                        `json:"version"`
	Bindings map[string][]types.Binding `json:"bindings"`
}

const tableVersion = 1

// Export writes the table as JSON so a build can be cached and reloaded
// without re-running validation.
func Export(table *types.BindingTable, w io.Writer) error {
	file := tableFile{Version: tableVersion, Bindings: map[string][]types.Binding{}}
	for _, name := range table.Events() {
		file.Bindings[name] = table.Lookup(name)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("registry: export binding table: %w", err)
	}
	return nil
}

// Import reads a table written by Export. Bindings are re-sorted and
// empty event names are rejected. Keys normalizing to the same name are
// merged in key order, dropping repeated handlers.
func Import(r io.Reader) (*types.BindingTable, error) {
	var file tableFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("registry: import binding table: %w", err)
	}
	if file.Version != tableVersion {
		return nil, fmt.Errorf("registry: import binding table: unsupported version %d", file.Version)
	}

	names := make([]string, 0, len(file.Bindings))
	for name := range file.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	bindings := make(map[string][]types.Binding, len(names))
	seen := map[string]map[string]struct{}{}
	for _, name := range names {
		normalized := types.NormalizeName(name)
		if err := types.ValidateName(normalized); err != nil {
			return nil, fmt.Errorf("registry: import binding table: %w", err)
		}
		keys, ok := seen[normalized]
		if !ok {
			keys = map[string]struct{}{}
			seen[normalized] = keys
		}
		for _, b := range file.Bindings[name] {
			if _, dup := keys[b.Key()]; dup {
				continue
			}
			keys[b.Key()] = struct{}{}
			bindings[normalized] = append(bindings[normalized], b)
		}
	}
	for _, list := range bindings {
		sortByPriority(list)
	}
	return types.NewBindingTable(bindings), nil
}
