// Package gpu определяет, доступен ли процессу NVIDIA GPU.
package gpu

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Prober сообщает, видит ли текущий процесс ускоритель.
type Prober interface {
	Available(ctx context.Context) bool
}

// Static — Prober с заранее известным ответом. Для тестов.
type Static bool

// Available возвращает фиксированное значение.
func (s Static) Available(context.Context) bool { return bool(s) }

// SystemProber проверяет драйвер NVIDIA в системе.
//
// Сначала ищутся файлы драйвера, затем nvidia-smi должен
// перечислить хотя бы одно устройство.
type SystemProber struct {
	// Paths — файлы, наличие любого из которых говорит о драйвере.
	Paths []string

	// SMI — путь к nvidia-smi. Пустой — искать в PATH.
	SMI string

	// Timeout — ограничение на вызов nvidia-smi.
	Timeout time.Duration
}

// NewSystemProber создаёт SystemProber со стандартными путями.
func NewSystemProber() *SystemProber {
	return &SystemProber{
		Paths:   []string{"/proc/driver/nvidia/version", "/dev/nvidia0"},
		SMI:     "nvidia-smi",
		Timeout: 5 * time.Second,
	}
}

// Available реализует Prober.
func (p *SystemProber) Available(ctx context.Context) bool {
	if !p.driverPresent() {
		return false
	}

	smi := p.SMI
	if smi == "" {
		smi = "nvidia-smi"
	}
	path, err := exec.LookPath(smi)
	if err != nil {
		return false
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, path, "-L").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "GPU ")
}

func (p *SystemProber) driverPresent() bool {
	for _, path := range p.Paths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
