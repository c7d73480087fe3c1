package gpu

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/pulsemon/internal/cache"
)

const (
	smiBinary  = "nvidia-smi"
	smiTimeout = time.Second

	// Fixed query: one CSV row per device, no units on numeric columns.
	smiQuery = "name,utilization.gpu,memory.used,memory.total,temperature.gpu,clocks.current.graphics"
)

// smiBackend shells out to nvidia-smi and parses its tabular CSV output.
// Each sample spawns one short-lived process reaped under a timeout.
type smiBackend struct {
	cache   *cache.Cache
	path    string
	timeout time.Duration
}

func newSMIBackend(c *cache.Cache) *smiBackend {
	path, err := exec.LookPath(smiBinary)
	if err != nil {
		path = ""
	}
	return &smiBackend{cache: c, path: path, timeout: smiTimeout}
}

func (b *smiBackend) available() bool { return b.path != "" }

func (b *smiBackend) label() string { return "nvidia-smi" }

func (b *smiBackend) sample(ctx context.Context) ([]Sample, error) {
	if b.path == "" {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.path,
		"--query-gpu="+smiQuery,
		"--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", smiBinary, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", smiBinary, err)
	}

	samples, err := parseSMIOutput(string(out))
	if err != nil {
		return nil, err
	}

	// Total VRAM is a static fact: serve it from the cache so a flaky row
	// in a later tick cannot change it.
	for i := range samples {
		s := &samples[i]
		total := s.MemoryTotal
		cached, cerr := cache.Value(b.cache, fmt.Sprintf("gpu/%d/vram_total", s.Index), staticTTL, func() (uint64, error) {
			return total, nil
		})
		if cerr == nil && cached > 0 {
			s.MemoryTotal = cached
		}
	}
	rememberNames(b.cache, samples)
	return samples, nil
}

func (b *smiBackend) close() {}

// parseSMIOutput converts nvidia-smi CSV rows into samples. A malformed row
// yields an unavailable sample for that device and a log line; an entirely
// empty output is a parse failure.
func parseSMIOutput(out string) ([]Sample, error) {
	var samples []Sample
	sc := bufio.NewScanner(strings.NewReader(out))
	idx := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s, err := parseSMIRow(idx, line)
		if err != nil {
			log.Printf("[gpu] skipping malformed nvidia-smi row %d: %v", idx, err)
			s = Sample{Index: idx, Status: StatusUnavailable}
		}
		samples = append(samples, s)
		idx++
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: empty output: %w", smiBinary, errParse)
	}
	return samples, nil
}

func parseSMIRow(idx int, line string) (Sample, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return Sample{}, fmt.Errorf("want 6 columns, got %d", len(parts))
	}

	s := Sample{Index: idx, Name: strings.TrimSpace(parts[0]), Status: StatusOK}

	util, err := smiFloat(parts[1])
	if err != nil {
		return Sample{}, fmt.Errorf("utilization: %w", err)
	}
	s.Utilization = util

	usedMiB, err := smiFloat(parts[2])
	if err != nil {
		return Sample{}, fmt.Errorf("memory.used: %w", err)
	}
	totalMiB, err := smiFloat(parts[3])
	if err != nil {
		return Sample{}, fmt.Errorf("memory.total: %w", err)
	}
	s.MemoryUsed = uint64(usedMiB) << 20
	s.MemoryTotal = uint64(totalMiB) << 20

	if temp, err := smiFloat(parts[4]); err == nil {
		s.Temperature = temp
	}
	if clock, err := smiFloat(parts[5]); err == nil {
		s.ClockMHz = clock
	}
	return s, nil
}

// smiFloat parses one value column. "[N/A]" is a valid reading of zero.
func smiFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "[N/A]") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
