package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tangzhangming/minijvm/internal/bytecode"
	"github.com/tangzhangming/minijvm/internal/classfile"
	"github.com/tangzhangming/minijvm/internal/errors"
	"github.com/tangzhangming/minijvm/internal/jit"
	"github.com/tangzhangming/minijvm/internal/pkg"
	"github.com/tangzhangming/minijvm/internal/program"
	"github.com/tangzhangming/minijvm/internal/vm"
)

var (
	showBytecode = flag.Bool("bytecode", false, "Show disassembled bytecode and exit")
	showTrace    = flag.Bool("trace", false, "Print recorded traces")
	interpOnly   = flag.Bool("interp", false, "Disable the JIT, interpret only")
	showRet      = flag.Bool("ret", false, "Print the last returned value")
	hotThreshold = flag.Int("hot-threshold", 0, "Override the hotness threshold")
	configPath   = flag.String("config", "", "Path to minijvm.toml")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("minijvm - a tracing JIT for a JVM bytecode subset")
		fmt.Println()
		fmt.Println("Usage: minijvm [options] <file.class>")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  -bytecode        Show disassembled bytecode and exit")
		fmt.Println("  -trace           Print recorded traces")
		fmt.Println("  -interp          Disable the JIT, interpret only")
		fmt.Println("  -ret             Print the last returned value")
		fmt.Println("  -hot-threshold   Override the hotness threshold")
		fmt.Println("  -config          Path to minijvm.toml")
		os.Exit(0)
	}

	filename := flag.Arg(0)

	// 配置：显式路径 > 从 class 文件目录向上查找 > 默认值
	config := pkg.Default()
	path := *configPath
	if path == "" {
		path = pkg.FindConfigFile(filename)
	}
	if path != "" {
		loaded, err := pkg.LoadConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}

	cf, err := classfile.ReadFile(filename)
	if err != nil {
		reporter := errors.NewReporter()
		reporter.Report(errors.New(errors.R0200, "", -1, "%v", err))
		os.Exit(1)
	}

	prog, err := program.New(cf)
	if err != nil {
		reporter := errors.NewReporter()
		reporter.Report(errors.New(errors.R0200, "", -1, "%v", err))
		os.Exit(1)
	}

	if *showBytecode {
		for _, m := range prog.Methods {
			if len(m.Instructions) == 0 {
				continue
			}
			fmt.Printf("=== %s%s (stack=%d, locals=%d) ===\n",
				m.Name, m.Descriptor, m.MaxStack, m.MaxLocals)
			fmt.Print(bytecode.Disassemble(m.Instructions))
			fmt.Println()
		}
		os.Exit(0)
	}

	jitConfig := &jit.Config{
		Enabled:        config.Jit.Enabled && !*interpOnly,
		HotThreshold:   config.Jit.HotThreshold,
		MaxTraceLength: config.Jit.MaxTraceLength,
		CacheMaxBytes:  config.Jit.CacheMaxBytes,
	}
	if *hotThreshold > 0 {
		jitConfig.HotThreshold = *hotThreshold
	}

	runtime := vm.NewRuntime(prog, jitConfig)
	runtime.TraceDebug = *showTrace || config.Verbosity() == "debug"
	defer runtime.Teardown()

	if d := runtime.Run(); d != nil {
		errors.NewReporter().Report(d)
		os.Exit(1)
	}

	if *showRet {
		if v, ok := runtime.TopReturnValue(); ok {
			fmt.Println(v.String())
		}
	}

	if config.Verbosity() == "debug" {
		fmt.Fprintf(os.Stderr, "jit: %d trace(s) compiled\n", runtime.Cache().Size())
	}
}
