package builtin

import (
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/kingrea/smart-mirror/internal/component"
)

// SystemStats is the payload of the system-stats component. Percentages are
// rounded; values that cannot be read are reported as 0.
type SystemStats struct {
	CPU    int     `json:"cpu"`
	Memory int     `json:"memory"`
	Disk   int     `json:"disk"`
	TempC  int     `json:"tempC"`
	Load1  float64 `json:"load1"`
}

// hostSource reads the host figures behind SystemStats.
type hostSource interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
	Temperature(ctx context.Context) (float64, error)
	Load1(ctx context.Context) (float64, error)
}

// gopsutilHost reads the host through gopsutil. procDir and sysDir
// relocate /proc and /sys; empty keeps gopsutil's defaults, which honour
// HOST_PROC and HOST_SYS.
type gopsutilHost struct {
	env common.EnvMap
}

func newHostSource(procDir, sysDir string) gopsutilHost {
	env := common.EnvMap{}
	if procDir != "" {
		env[common.HostProcEnvKey] = procDir
	}
	if sysDir != "" {
		env[common.HostSysEnvKey] = sysDir
	}
	return gopsutilHost{env: env}
}

func (p gopsutilHost) context(ctx context.Context) context.Context {
	if len(p.env) == 0 {
		return ctx
	}
	return context.WithValue(ctx, common.EnvKey, p.env)
}

// CPUPercent is the utilisation since the previous call.
func (p gopsutilHost) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(p.context(ctx), 0, false)
	if err != nil || len(pct) == 0 {
		return 0, err
	}
	return pct[0], nil
}

func (p gopsutilHost) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(p.context(ctx))
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (p gopsutilHost) DiskPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(p.context(ctx), path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Temperature prefers a CPU/SoC sensor and falls back to the first
// positive reading.
func (p gopsutilHost) Temperature(ctx context.Context) (float64, error) {
	temps, err := sensors.TemperaturesWithContext(p.context(ctx))
	if len(temps) == 0 {
		return 0, err
	}
	return pickTemperature(temps), nil
}

func (p gopsutilHost) Load1(ctx context.Context) (float64, error) {
	avg, err := load.AvgWithContext(p.context(ctx))
	if err != nil {
		return 0, err
	}
	return avg.Load1, nil
}

var cpuSensorHints = []string{"cpu", "soc", "package", "coretemp", "k10temp", "x86_pkg"}

func pickTemperature(temps []sensors.TemperatureStat) float64 {
	for _, hint := range cpuSensorHints {
		for _, t := range temps {
			if t.Temperature > 0 && strings.Contains(strings.ToLower(t.SensorKey), hint) {
				return t.Temperature
			}
		}
	}
	for _, t := range temps {
		if t.Temperature > 0 {
			return t.Temperature
		}
	}
	return 0
}

type systemStats struct {
	host hostSource
}

func newSystemStats(host hostSource) *systemStats {
	return &systemStats{host: host}
}

func (s *systemStats) handle(ctx context.Context, settings component.Settings, _ *http.Request) (any, error) {
	diskPath := settings.String("diskPath")
	if diskPath == "" {
		diskPath = "/"
	}
	read := func(v float64, err error) float64 {
		if err != nil || math.IsNaN(v) {
			return 0
		}
		return v
	}
	load1 := read(s.host.Load1(ctx))
	return SystemStats{
		CPU:    percent(read(s.host.CPUPercent(ctx))),
		Memory: percent(read(s.host.MemoryPercent(ctx))),
		Disk:   percent(read(s.host.DiskPercent(ctx, diskPath))),
		TempC:  int(math.Round(read(s.host.Temperature(ctx)))),
		Load1:  math.Round(load1*100) / 100,
	}, nil
}

func percent(v float64) int {
	return int(math.Round(math.Max(0, math.Min(v, 100))))
}
