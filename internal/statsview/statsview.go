// Package statsview wraps the go-echarts statsview service, which provides
// live visualisations of the Go runtime (goroutines, heap, GC pauses) in a
// web browser while the emulator runs.
package statsview

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// Address statsview will serve on.
const Address = "localhost:12560"

const url = "/debug/statsview"

// Launch starts the statsview service in a new goroutine.
func Launch(output io.Writer) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(Address))
		mgr := statsview.New()
		mgr.Start()
	}()

	fmt.Fprintf(output, "stats server available at http://%s%s\n", Address, url)
}
