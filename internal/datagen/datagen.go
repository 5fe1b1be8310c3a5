// Package datagen produces synthetic event data for demos and load tests.
// Output is a CSV whose columns line up with the canonical events schema
// used throughout the docs: event_type, value, user_id, country, ts.
package datagen

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/snowfort-db/snowfort/internal/fsutil"
)

var (
	eventTypes = []string{"click", "view", "purchase", "signup", "refund"}
	countries  = []string{"AR", "BR", "CL", "MX", "US", "DE", "JP"}
)

// Spec holds generation parameters. The same seed always yields the same
// file.
type Spec struct {
	Rows int
	Seed int64
	Path string
}

// Header is the CSV header line Generate writes.
const Header = "event_type,value,user_id,country,ts"

// Generate writes a synthetic events CSV to spec.Path via a temp file, so a
// partially generated file never lands at the destination.
func Generate(spec Spec) error {
	if spec.Rows < 0 {
		return fmt.Errorf("negative row count %d", spec.Rows)
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString(Header + "\n")
	for i := 0; i < spec.Rows; i++ {
		ts := base.Add(time.Duration(rng.Intn(365*24*3600)) * time.Second)
		fmt.Fprintf(&b, "%s,%.3f,%d,%s,%s\n",
			eventTypes[rng.Intn(len(eventTypes))],
			rng.Float64()*1000,
			10_000+rng.Intn(90_000),
			countries[rng.Intn(len(countries))],
			ts.Format(time.RFC3339))
	}

	if err := fsutil.WriteFileAtomic(spec.Path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}
	return nil
}

// CountRows returns the number of data rows in a generated file, used by the
// CLI to echo what it wrote.
func CountRows(path string) (int, error) {
	f, err := os.Open(path) // #nosec G304 - path from CLI flag
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := -1 // skip header
	for sc.Scan() {
		n++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}
