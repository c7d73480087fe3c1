package proc

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Raw procfs readers. gopsutil covers most per-process facts, but the
// last-run core (stat field 39) and per-thread listings are cheaper and
// simpler to read straight from /proc.

// clockTicks returns jiffies per second. CLK_TCK overrides for tests;
// 100 is the kernel default on every platform we target.
func clockTicks() float64 {
	if v, _ := strconv.Atoi(os.Getenv("CLK_TCK")); v > 0 {
		return float64(v)
	}
	return 100
}

// statFields splits a /proc/*/stat line into the numeric fields after the
// comm column. comm is parenthesized and may itself contain spaces or
// parens, so everything before the last ") " is skipped.
func statFields(line string) []string {
	i := strings.LastIndex(line, ") ")
	if i < 0 {
		return nil
	}
	return strings.Fields(line[i+2:])
}

// lastRunCore reports the core pid was last scheduled on, clamped to
// [0, cores). Unreadable stat files (exited process, foreign platform)
// map to core 0.
func lastRunCore(pid int32, cores int) int {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0
	}
	// processor is overall field 39; relative to the post-comm fields
	// (which start at overall field 3) that is index 36.
	fields := statFields(string(b))
	if len(fields) <= 36 {
		return 0
	}
	core, err := strconv.Atoi(fields[36])
	if err != nil || core < 0 || core >= cores {
		return 0
	}
	return core
}

// listThreads enumerates /proc/<pid>/task, reading each thread's name and
// cumulative CPU time. A thread (or the whole process) vanishing
// mid-enumeration is skipped, not an error.
func listThreads(pid int32) ([]threadStat, error) {
	taskDir := fmt.Sprintf("/proc/%d/task", pid)
	dirs, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, err
	}

	ticks := clockTicks()
	stats := make([]threadStat, 0, len(dirs))
	for _, d := range dirs {
		tid, err := strconv.Atoi(d.Name())
		if err != nil {
			continue
		}

		st := threadStat{tid: int32(tid)}
		if b, err := os.ReadFile(fmt.Sprintf("%s/%d/comm", taskDir, tid)); err == nil {
			st.name = strings.TrimSpace(string(b))
		}
		b, err := os.ReadFile(fmt.Sprintf("%s/%d/stat", taskDir, tid))
		if err != nil {
			continue
		}
		fields := statFields(string(b))
		// utime and stime are overall fields 14 and 15: indices 11 and 12.
		if len(fields) <= 12 {
			continue
		}
		utime, _ := strconv.ParseUint(fields[11], 10, 64)
		stime, _ := strconv.ParseUint(fields[12], 10, 64)
		st.cpuTime = float64(utime+stime) / ticks

		stats = append(stats, st)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].tid < stats[j].tid })
	return stats, nil
}
