package bench

import (
	"bytes"

	"golang.org/x/perf/benchstat"
)

// Compare feeds two benchmark-format recordings (see FormatBenchmark)
// through benchstat and returns the rendered comparison table.
func Compare(baselineName string, baseline []byte, candidateName string, candidate []byte) (string, error) {
	c := &benchstat.Collection{
		Alpha:      0.05,
		DeltaTest:  benchstat.UTest,
		AddGeoMean: false,
	}
	c.AddConfig(baselineName, baseline)
	c.AddConfig(candidateName, candidate)

	var buf bytes.Buffer
	benchstat.FormatText(&buf, c.Tables())
	return buf.String(), nil
}
