// Package platform implements PlatformProbe: hierarchical detection of the
// hosting environment plus best-effort resource facts (RAM, CPU, GPU).
package platform

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Descriptor is a PlatformDescriptor: computed once per process and
// consumed read-only by PathResolver and EnvProvisioner.
type Descriptor struct {
	Name               string
	IsCloud            bool
	SupportsIsolationA bool // conda-class default backend
	SupportsIsolationB bool // venv-class fallback backend
	BasePath           string

	MemoryGB float64
	CPUCount int

	GPUName         string
	GPUTotalMB      int
	GPUUsedMB       int
	GPUFreeMB       int
	GPUDriverVer    string
	HasGPU          bool
}

// ProbeError wraps a failed mandatory inspection call. Missing optional
// facts (e.g. absent GPU) are never an error — only a failed syscall that
// was required to produce the descriptor at all.
type ProbeError struct {
	Op  string
	Err error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("platform probe: %s: %v", e.Op, e.Err) }
func (e *ProbeError) Unwrap() error { return e.Err }

// envCheck is one hierarchical detection rule: if any of vars is set (to
// anything), the platform is identified.
type envCheck struct {
	name               string
	vars               []string
	isCloud            bool
	basePath           string
	supportsIsolationA bool
	supportsIsolationB bool
}

// checks runs in order; the first positive match wins. Grounded on
// original_source P01_CloudDetector.detect_platform's hierarchical
// if/elif chain (Colab, Vast.ai, Lightning AI, Kaggle, SageMaker).
var checks = []envCheck{
	{name: "Google Colab", vars: []string{"COLAB_GPU"}, isCloud: true, basePath: "/content", supportsIsolationA: true, supportsIsolationB: true},
	{name: "Vast.ai", vars: []string{"VAST_AI_INSTANCE_ID"}, isCloud: true, basePath: "/workspace", supportsIsolationA: true, supportsIsolationB: true},
	{name: "Lightning AI", vars: []string{"LIGHTNING_APP_STATE_URL"}, isCloud: true, basePath: "/teamspace/studios/this_studio", supportsIsolationA: false, supportsIsolationB: true},
	{name: "Kaggle", vars: []string{"KAGGLE_KERNEL_RUN_TYPE"}, isCloud: true, basePath: "/kaggle/working", supportsIsolationA: true, supportsIsolationB: true},
	{name: "AWS SageMaker", vars: []string{"AWS_SAGEMAKER_JUPYTER_KERNEL_IMAGE_NAME"}, isCloud: true, basePath: "/home/ec2-user/SageMaker", supportsIsolationA: true, supportsIsolationB: true},
}

// Detect performs the ordered environment-variable checks and fills in
// best-effort resource facts. It fails only if a mandatory call errors;
// GPU facts are left zero-valued when absent.
func Detect() (*Descriptor, error) {
	d := &Descriptor{
		Name:               "Localhost",
		IsCloud:            false,
		SupportsIsolationA: true,
		SupportsIsolationB: true,
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, &ProbeError{Op: "getwd", Err: err}
	}
	d.BasePath = cwd

	for _, c := range checks {
		if anySet(c.vars) {
			d.Name = c.name
			d.IsCloud = c.isCloud
			d.BasePath = c.basePath
			d.SupportsIsolationA = c.supportsIsolationA
			d.SupportsIsolationB = c.supportsIsolationB
			break
		}
	}

	d.CPUCount = runtime.NumCPU()
	d.MemoryGB = memoryGB()
	probeGPU(d)

	return d, nil
}

func anySet(vars []string) bool {
	for _, v := range vars {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// memoryGB reads total RAM from /proc/meminfo; returns 0 where unavailable
// (e.g. non-Linux), which is not an error per the probe's "null, not
// fatal" contract.
func memoryGB() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0
		}
		return kb / (1024 * 1024)
	}
	return 0
}

// probeGPU fills in GPU facts via nvidia-smi when present, otherwise falls
// back to globbing the NVIDIA proc interface. Both paths are best-effort:
// any failure simply leaves the GPU fields at their zero value.
func probeGPU(d *Descriptor) {
	if probeGPUNvidiaSMI(d) {
		return
	}
	probeGPUProcFS(d)
}

func probeGPUNvidiaSMI(d *Descriptor) bool {
	path, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}
	out, err := exec.Command(path, "--query-gpu=name,memory.total,memory.used,memory.free,driver_version",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return false
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if line == "" {
		return false
	}
	fields := strings.Split(line, ",")
	if len(fields) < 5 {
		return false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	d.GPUName = fields[0]
	d.GPUTotalMB, _ = strconv.Atoi(fields[1])
	d.GPUUsedMB, _ = strconv.Atoi(fields[2])
	d.GPUFreeMB, _ = strconv.Atoi(fields[3])
	d.GPUDriverVer = fields[4]
	d.HasGPU = true
	return true
}

func probeGPUProcFS(d *Descriptor) bool {
	matches, err := filepath.Glob("/proc/driver/nvidia/gpus/*/information")
	if err != nil || len(matches) == 0 {
		return false
	}
	f, err := os.Open(matches[0])
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "Model" {
			d.GPUName = val
			d.HasGPU = true
		}
	}
	return d.HasGPU
}
