package main

// ptxdump records the two canonical extraction scenarios and prints the
// resulting PTX modules: a forward hypot kernel with declared inputs and
// outputs, and a differentiated kernel accumulating the input gradient
// into a captured global buffer.

import (
	"flag"
	"fmt"
	"log"

	"github.com/djeday123/gojit/array"
	"github.com/djeday123/gojit/backend"
	"github.com/djeday123/gojit/backend/cuda"
	"github.com/djeday123/gojit/jit"
	"github.com/djeday123/gojit/pkg/config"
)

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("ptxdump: %v", err)
		}
	}

	fmt.Println("--- forward kernel ---")
	forward(cfg)
	fmt.Println("--- autodiff kernel ---")
	autodiff(cfg)
}

func forward(cfg *config.Config) {
	ctx := jit.NewContext(cfg)
	a := array.Const(ctx, 1, 1).SetLabel("a")
	b := array.Const(ctx, 2, 1).SetLabel("b")

	must(ctx.StartRecording("my_function"))
	c, err := array.Hypot(a, b)
	if err != nil {
		log.Fatalf("ptxdump: %v", err)
	}
	c.SetLabel("c")
	must(ctx.DeclareInputs(a, b))
	must(ctx.DeclareOutputs(c))
	must(ctx.StopRecording())

	text, _ := ctx.ModuleText()
	fmt.Print(text)
}

func autodiff(cfg *config.Config) {
	ctx := jit.NewContext(cfg)
	a := array.Const(ctx, 1, 1).SetLabel("a").SetRequiresGradient()
	b := array.Const(ctx, 2, 1).SetLabel("b")
	gradOut := array.Zeros(ctx, 1).SetLabel("grad_of_output")
	outGrad := array.Zeros(ctx, 1).SetLabel("out_grad")

	must(ctx.StartRecording("my_function_d"))
	c, err := array.Hypot(a, b)
	if err != nil {
		log.Fatalf("ptxdump: %v", err)
	}
	c.SetLabel("c")
	must(array.SetGradient(c, gradOut))
	must(ctx.Backward())

	gradA, err := array.Gradient(a)
	if err != nil {
		log.Fatalf("ptxdump: %v", err)
	}
	gradA.SetLabel("grad_of_param")
	index, err := array.Arange(ctx, 1)
	if err != nil {
		log.Fatalf("ptxdump: %v", err)
	}
	index.SetLabel("index")
	must(array.ScatterAdd(outGrad, gradA, index))

	must(ctx.DeclareInputs(a, b, gradOut))
	// No declared outputs: the gradient reaches the out_grad global as a
	// side effect.
	must(ctx.StopRecording())

	text, _ := ctx.ModuleText()
	fmt.Print(text)

	fmt.Println("globals:")
	for _, g := range ctx.Globals() {
		fmt.Printf("  %-16s offset %d\n", g.Name, g.Offset)
	}

	loadOnGPU(ctx, text)
}

// loadOnGPU JIT-compiles the module on the first CUDA device when one is
// present and stages a zeroed globals buffer for it.
func loadOnGPU(ctx *jit.Context, text string) {
	bk, err := backend.Get(backend.CUDA)
	if err != nil {
		fmt.Println("cuda: no device, skipping module load")
		return
	}
	cb := bk.(*cuda.Backend)
	fmt.Println("cuda:", cb.Info())

	mod, err := cb.LoadModule(text)
	if err != nil {
		log.Fatalf("ptxdump: load module: %v", err)
	}
	defer mod.Unload()

	pool := cuda.NewPool(cb)
	defer pool.FreeAll()
	if size := ctx.GlobalsSize(); size > 0 {
		buf := pool.Get(size)
		cb.CopyToDevice(buf, make([]byte, size))
		fmt.Printf("cuda: staged %d-byte globals buffer at %#x\n", size, buf.Ptr())
		pool.Put(buf)
	}
	fmt.Println("cuda: module loaded ok")
}

func must(err error) {
	if err != nil {
		log.Fatalf("ptxdump: %v", err)
	}
}
