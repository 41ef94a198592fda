package dump

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/pinand/pinand/pkg/geometry"
)

// DefaultDir is where images go when no path is given.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "pinand")
}

// PathFor names an image of the NAND described by g, taken at t. Multiple
// passes of the same read get a pass suffix.
func PathFor(dir string, g *geometry.Geometry, t time.Time, pass int) string {
	if dir == "" {
		dir = DefaultDir()
	}
	name := fmt.Sprintf("nand-%08x-%s", g.Raw, t.Format("20060102-150405"))
	if pass > 0 {
		name += fmt.Sprintf("-%d", pass)
	}
	return filepath.Join(dir, name+".bin")
}
