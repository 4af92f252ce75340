// Command perf-regression compares two `go test -bench` output files and
// fails when a tracked hot-path benchmark regresses beyond a threshold.
// Medians across repeated -count runs keep single noisy samples from
// failing or masking a check.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// metricKey identifies one tracked series: a benchmark plus a result unit.
type metricKey struct {
	benchmark string
	unit      string
}

func (k metricKey) String() string {
	return k.benchmark + " " + k.unit
}

// tracked lists the hot paths the check guards. Validate is the per-request
// path, so allocation count matters there as much as time.
var tracked = []metricKey{
	{"BenchmarkValidate", "ns/op"},
	{"BenchmarkValidate", "allocs/op"},
	{"BenchmarkIssue", "ns/op"},
	{"BenchmarkRefresh", "ns/op"},
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := parseBenchmarkFile(baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	var failures []string
	fmt.Println("perf regression check:")
	fmt.Println("benchmark metric baseline candidate delta")

	for _, key := range tracked {
		baseSamples := baseline[key]
		candidateSamples := candidate[key]
		if len(baseSamples) == 0 || len(candidateSamples) == 0 {
			failures = append(failures, fmt.Sprintf("missing samples for %s", key))
			continue
		}

		baseMedian := median(baseSamples)
		candidateMedian := median(candidateSamples)
		if baseMedian <= 0 {
			failures = append(failures, fmt.Sprintf("invalid baseline median for %s", key))
			continue
		}

		delta := (candidateMedian - baseMedian) / baseMedian
		fmt.Printf("%s %.3f %.3f %+0.2f%%\n", key, baseMedian, candidateMedian, delta*100)
		if delta > threshold {
			failures = append(failures, fmt.Sprintf("%s regressed by %+0.2f%% (limit %+0.2f%%)", key, delta*100, threshold*100))
		}
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", failure)
		}
		os.Exit(1)
	}
}

func parseBenchmarkFile(path string) (map[metricKey][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	isTracked := make(map[string]bool, len(tracked))
	for _, key := range tracked {
		isTracked[key.benchmark] = true
	}

	samples := map[metricKey][]float64{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := stripProcSuffix(fields[0])
		if !isTracked[name] {
			continue
		}

		// Result lines alternate value and unit after the iteration count:
		// BenchmarkValidate-8  120000  9500 ns/op  512 B/op  7 allocs/op
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			key := metricKey{benchmark: name, unit: fields[i+1]}
			samples[key] = append(samples[key], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// stripProcSuffix removes the -N GOMAXPROCS suffix from a benchmark name.
func stripProcSuffix(raw string) string {
	idx := strings.LastIndexByte(raw, '-')
	if idx <= 0 {
		return raw
	}
	if _, err := strconv.Atoi(raw[idx+1:]); err != nil {
		return raw
	}
	return raw[:idx]
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	copied := make([]float64, len(values))
	copy(copied, values)
	sort.Float64s(copied)

	mid := len(copied) / 2
	if len(copied)%2 == 1 {
		return copied[mid]
	}
	return (copied[mid-1] + copied[mid]) / 2
}
