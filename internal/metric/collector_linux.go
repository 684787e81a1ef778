//go:build linux

package metric

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultCollector gathers a Sample by shelling out to the same set of
// coreutils/procps tools that regisd/src/metric/collect.rs in
// original_source uses (free, df, top, ps), plus a direct read of
// /proc/net/dev for interface byte counters — netstat -i only reports
// packet counts, which can't fill NetworkReading's Rx/TxBytes fields.
// Each sub-collection runs independently; a failure in one does not
// prevent the others from populating the Sample (see Collector's doc
// comment on partial samples).
type DefaultCollector struct{}

// NewDefaultCollector returns the production Collector for Linux hosts.
func NewDefaultCollector() *DefaultCollector { return &DefaultCollector{} }

func (c *DefaultCollector) Collect() (Sample, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sample := Sample{Timestamp: time.Now().Unix()}
	var errs []error

	if cpu, err := collectCPU(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else {
		sample.CPU = cpu
	}

	if mem, err := collectMemory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		sample.Memory = mem
	}

	if storage, err := collectStorage(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	} else {
		sample.Storage = storage
	}

	if net, err := collectNetwork(); err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	} else {
		sample.Network = net
	}

	if count, err := collectProcessCount(ctx); err != nil {
		errs = append(errs, fmt.Errorf("process count: %w", err))
	} else {
		sample.ProcessCount = count
	}

	return sample, errors.Join(errs...)
}

// collectMemory runs `free -b` and parses its tabular output, mirroring
// collect_memory() in original_source.
func collectMemory(ctx context.Context) ([]MemoryReading, error) {
	out, err := exec.CommandContext(ctx, "free", "-b").Output()
	if err != nil {
		return nil, err
	}
	return parseMemory(out)
}

func parseMemory(out []byte) ([]MemoryReading, error) {
	var readings []MemoryReading
	scanner := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for scanner.Scan() {
		if first {
			first = false // header row
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		device := strings.TrimSuffix(fields[0], ":")
		total, errTotal := strconv.ParseUint(fields[1], 10, 64)
		used, errUsed := strconv.ParseUint(fields[2], 10, 64)
		if errTotal != nil || errUsed != nil {
			continue
		}
		readings = append(readings, MemoryReading{Device: device, TotalBytes: total, UsedBytes: used})
	}
	if err := scanner.Err(); err != nil {
		return readings, err
	}
	if len(readings) == 0 {
		return nil, errors.New("no parseable rows in free output")
	}
	return readings, nil
}

// collectStorage runs `df -k` and keeps only real block devices, the
// same /dev-prefix filter original_source's collect_storage() applies.
func collectStorage(ctx context.Context) ([]StorageReading, error) {
	out, err := exec.CommandContext(ctx, "df", "-k").Output()
	if err != nil {
		return nil, err
	}
	return parseStorage(out)
}

func parseStorage(out []byte) ([]StorageReading, error) {
	var readings []StorageReading
	scanner := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "/dev") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			continue
		}
		totalKB, errTotal := strconv.ParseUint(fields[1], 10, 64)
		usedKB, errUsed := strconv.ParseUint(fields[2], 10, 64)
		if errTotal != nil || errUsed != nil {
			continue
		}
		readings = append(readings, StorageReading{
			MountPoint: fields[5],
			TotalBytes: totalKB * 1024,
			UsedBytes:  usedKB * 1024,
		})
	}
	if err := scanner.Err(); err != nil {
		return readings, err
	}
	if len(readings) == 0 {
		return nil, errors.New("no /dev-prefixed rows in df output")
	}
	return readings, nil
}

// collectCPU runs `top -b -n1` and reduces the aggregate line to a
// single usage percentage (100 - idle), the same line original_source's
// collect_cpu() greps for.
func collectCPU(ctx context.Context) (*CPUReading, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", `top -b -n 1 | grep "%Cpu(s)"`).Output()
	if err != nil {
		return nil, err
	}
	return parseCPU(string(out))
}

func parseCPU(out string) (*CPUReading, error) {
	line := strings.TrimSpace(out)
	line = strings.TrimPrefix(line, "%Cpu(s):")
	fields := strings.Split(line, ",")

	var idle float64
	found := false
	for _, field := range fields {
		field = strings.TrimSpace(field)
		parts := strings.Fields(field)
		if len(parts) != 2 {
			continue
		}
		if parts[1] != "id" {
			continue
		}
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}
		idle = v
		found = true
		break
	}
	if !found {
		return nil, errors.New("idle percentage not found in top output")
	}

	return &CPUReading{UsagePercent: 100 - idle}, nil
}

// collectNetwork reads /proc/net/dev directly rather than shelling out
// to netstat -i: netstat only reports packet counts, but NetworkReading
// needs byte counters, which only /proc/net/dev carries.
func collectNetwork() ([]NetworkReading, error) {
	f, err := os.Open("/proc/net/dev")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseNetwork(f)
}

func parseNetwork(r io.Reader) ([]NetworkReading, error) {
	var readings []NetworkReading
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= 2 {
			continue // two header rows
		}
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		fields := strings.Fields(line[idx+1:])
		if len(fields) < 9 {
			continue
		}
		rx, errRx := strconv.ParseUint(fields[0], 10, 64)
		tx, errTx := strconv.ParseUint(fields[8], 10, 64)
		if errRx != nil || errTx != nil {
			continue
		}
		readings = append(readings, NetworkReading{Interface: name, RxBytes: rx, TxBytes: tx})
	}
	if err := scanner.Err(); err != nil {
		return readings, err
	}
	if len(readings) == 0 {
		return nil, errors.New("no interfaces found in /proc/net/dev")
	}
	return readings, nil
}

// collectProcessCount runs the same `ps -e --no-headers | wc -l`
// pipeline as collect_process_count() in original_source.
func collectProcessCount(ctx context.Context) (*uint64, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", "ps -e --no-headers | wc -l").Output()
	if err != nil {
		return nil, err
	}
	return parseProcessCount(string(out))
}

func parseProcessCount(out string) (*uint64, error) {
	count, err := strconv.ParseUint(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return nil, err
	}
	return &count, nil
}
