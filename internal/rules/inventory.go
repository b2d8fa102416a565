package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gatewright/internal/reconcile"
)

// LoadInventoryFile reads a symbol inventory from a YAML file.
//
// Expected shape:
//
//	symbols:
//	  create_user: "exists"
//	  delete_user: "removed in v2"
func LoadInventoryFile(path string) (reconcile.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var doc struct {
		Symbols map[string]string `yaml:"symbols"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Symbols == nil {
		return nil, fmt.Errorf("parse %s: symbols map is required", path)
	}
	return reconcile.Inventory(doc.Symbols), nil
}
