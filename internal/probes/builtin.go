package probes

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Builtin returns the standard probes.
func Builtin() []Probe {
	return []Probe{
		{Name: "disk_usage", Description: "Check disk space usage across filesystems", Run: DiskUsage},
		{Name: "cpu_load", Description: "Check CPU load and performance metrics", Run: CPULoad},
		{Name: "memory_status", Description: "Check RAM and swap memory usage", Run: MemoryStatus},
		{Name: "process_list", Description: "List top memory-consuming processes", Run: ProcessList},
		{Name: "recent_errors", Description: "Get recent system error logs", Run: RecentErrors},
	}
}

// DiskUsage reports usage of every mounted physical filesystem.
func DiskUsage(ctx context.Context, _ map[string]string) (string, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return "", fmt.Errorf("list partitions: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-8s %10s %10s %10s %6s\n", "MOUNT", "FSTYPE", "SIZE", "USED", "AVAIL", "USE%")
	seen := make(map[string]bool)
	for _, p := range parts {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true
		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		fmt.Fprintf(&b, "%-24s %-8s %10s %10s %10s %5.1f%%\n",
			p.Mountpoint, p.Fstype, humanize.IBytes(u.Total), humanize.IBytes(u.Used), humanize.IBytes(u.Free), u.UsedPercent)
	}
	return b.String(), nil
}

// CPULoad reports load averages, core counts and a short utilization sample.
func CPULoad(ctx context.Context, _ map[string]string) (string, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("load average: %w", err)
	}
	var b strings.Builder
	if up, err := host.UptimeWithContext(ctx); err == nil {
		fmt.Fprintf(&b, "up since %s\n", humanize.Time(time.Now().Add(-time.Duration(up)*time.Second)))
	}
	fmt.Fprintf(&b, "load average: %.2f, %.2f, %.2f\n", avg.Load1, avg.Load5, avg.Load15)
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		fmt.Fprintf(&b, "logical cpus: %d\n", n)
	}
	if pct, err := cpu.PercentWithContext(ctx, time.Second, true); err == nil {
		var total float64
		for i, p := range pct {
			fmt.Fprintf(&b, "cpu%d: %5.1f%%\n", i, p)
			total += p
		}
		if len(pct) > 0 {
			fmt.Fprintf(&b, "average: %5.1f%%\n", total/float64(len(pct)))
		}
	}
	return b.String(), nil
}

// MemoryStatus reports RAM and swap usage.
func MemoryStatus(ctx context.Context, _ map[string]string) (string, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("virtual memory: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %10s %10s %10s %6s\n", "", "TOTAL", "USED", "AVAIL", "USE%")
	fmt.Fprintf(&b, "%-6s %10s %10s %10s %5.1f%%\n", "Mem:",
		humanize.IBytes(vm.Total), humanize.IBytes(vm.Used), humanize.IBytes(vm.Available), vm.UsedPercent)
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		fmt.Fprintf(&b, "%-6s %10s %10s %10s %5.1f%%\n", "Swap:",
			humanize.IBytes(sw.Total), humanize.IBytes(sw.Used), humanize.IBytes(sw.Free), sw.UsedPercent)
	}
	return b.String(), nil
}

type procRow struct {
	pid  int32
	name string
	mem  float32
	rss  uint64
	cpu  float64
}

// ProcessList lists the top processes by memory. args["limit"] overrides the
// default of 20 rows.
func ProcessList(ctx context.Context, args map[string]string) (string, error) {
	limit := 20
	if v, ok := args["limit"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}
	rows := make([]procRow, 0, len(procs))
	for _, p := range procs {
		mp, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		row := procRow{pid: p.Pid, mem: mp}
		row.name, _ = p.NameWithContext(ctx)
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			row.rss = mi.RSS
		}
		row.cpu, _ = p.CPUPercentWithContext(ctx)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].mem != rows[j].mem {
			return rows[i].mem > rows[j].mem
		}
		return rows[i].pid < rows[j].pid
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%7s %6s %6s %10s %s\n", "PID", "%MEM", "%CPU", "RSS", "NAME")
	for _, r := range rows {
		fmt.Fprintf(&b, "%7d %5.1f%% %5.1f%% %10s %s\n", r.pid, r.mem, r.cpu, humanize.IBytes(r.rss), r.name)
	}
	return b.String(), nil
}

// syslogPath is read when journalctl is unavailable.
var syslogPath = "/var/log/syslog"

// RecentErrors returns error-priority journal entries from the current boot,
// falling back to error lines in syslog.
func RecentErrors(ctx context.Context, _ map[string]string) (string, error) {
	cmd := exec.CommandContext(ctx, "journalctl", "-b", "0", "-p", "err", "--no-pager", "-n", "100")
	out, err := cmd.Output()
	if err == nil {
		return string(out), nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return grepErrors(syslogPath, 100)
}

// grepErrors returns the last n lines of path that mention "error".
func grepErrors(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("no journal and no syslog: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if bytes.Contains(bytes.ToLower(sc.Bytes()), []byte("error")) {
			lines = append(lines, sc.Text())
			if len(lines) > n {
				lines = lines[1:]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "no recent errors\n", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}
