package catalog

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/unitdesign/internal/hclcatalog"
	"github.com/leapstack-labs/unitdesign/internal/starlark"
)

// LoadDir registers every unit process defined in the HCL files of dir.
// Script rules call into scripts, which may be nil. A missing directory
// registers nothing. Every failing definition is reported.
func (c *Catalog) LoadDir(dir string, scripts *starlark.Library) (int, error) {
	defs, err := hclcatalog.LoadDir(dir, scripts)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, d := range defs {
		g, err := d.Graph()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.Register(Entry{
			TypeName:    d.Name,
			Description: d.Description,
			Graph:       g,
			Defaults:    d.Defaults,
			Origin:      d.Path,
		}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Path, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
