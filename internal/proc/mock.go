package proc

import (
	"context"
	"math/rand"
)

// useMockProcesses installs a synthetic process set for demos: a stable
// population of PIDs whose usage jitters between cycles, plus synthetic
// threads so expansion works without a real /proc.
func (c *Collector) useMockProcesses() {
	names := []string{"chrome", "code", "go", "kworker", "bash", "dockerd", "postgres", "nvim"}

	c.listFn = func(context.Context) ([]procEntry, error) {
		entries := make([]procEntry, 0, 48)
		for i := 0; i < 48; i++ {
			entries = append(entries, procEntry{
				pid:        int32(1000 + i),
				name:       names[i%len(names)],
				core:       i % c.cores,
				cpuPercent: rand.Float64() * 12,
				memPercent: rand.Float64() * 3,
				rss:        uint64(20+rand.Intn(400)) << 20,
				numThreads: int32(1 + rand.Intn(16)),
			})
		}
		return entries, nil
	}

	c.threadsFn = func(pid int32) ([]threadStat, error) {
		stats := make([]threadStat, 0, 4)
		for i := 0; i < 4; i++ {
			stats = append(stats, threadStat{
				tid:     pid*10 + int32(i),
				name:    "worker",
				cpuTime: rand.Float64() * 100,
			})
		}
		return stats, nil
	}
}
