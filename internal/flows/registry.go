package flows

import (
	"github.com/shaiso/batchflows/internal/config"
	"github.com/shaiso/batchflows/internal/flow"
	"github.com/shaiso/batchflows/internal/gpu"
)

// Registry возвращает реестр со всеми flows проекта.
func Registry(cfg config.Config, prober gpu.Prober) *flow.Registry {
	reg := flow.NewRegistry()
	reg.MustRegister(ExampleFlow())
	reg.MustRegister(ExampleGPUFlow(cfg, prober))
	return reg
}
