package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/bms-bridge/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/logging"
	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/protocol/seplos"
	"github.com/taoyao-code/bms-bridge/internal/session"
	"github.com/taoyao-code/bms-bridge/internal/transport"
	"github.com/taoyao-code/bms-bridge/internal/workflow"
)

// cliTickPeriod 交互模式下流程推进节拍
const cliTickPeriod = 100 * time.Millisecond

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		device     = flag.String("device", "", "串口设备（覆盖配置）")
		address    = flag.Int("address", 0, "电池总线地址")
		verbose    = flag.Bool("verbose", false, "输出调试日志")

		listFields = flag.Bool("list", false, "列出全部字段后退出")
		writable   = flag.Bool("writable", false, "配合 -list，只列可写参数")
		showField  = flag.String("show", "", "打印字段定义后退出")
		readField  = flag.String("read", "", "从设备读取单个字段")
		readAll    = flag.Bool("all", false, "读取全部页并打印")
		yamlOut    = flag.Bool("yaml", false, "配合 -all，YAML 格式输出")
		editField  = flag.String("edit", "", "编辑参数，需配合 -value")
		editValue  = flag.String("value", "", "配合 -edit 的新值")
	)
	flag.Parse()

	// 不碰串口的模式最先处理
	if *listFields {
		printFieldList(*writable)
		return
	}
	if *showField != "" {
		if err := printFieldInfo(*showField); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *address != 0 {
		cfg.Serial.PollAddress = *address
	}

	interactive := *readField != "" || *readAll || *editField != ""
	if !interactive {
		runDaemon(cfg)
		return
	}

	level := zapcore.WarnLevel
	if *verbose {
		level = zapcore.DebugLevel
	}
	log := logging.ConsoleLogger(level)

	if err := runInteractive(cfg, log, *readField, *readAll, *yamlOut, *editField, *editValue); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runDaemon 常驻模式：轮询、发布、HTTP API
func runDaemon(cfg *cfgpkg.Config) {
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		os.Exit(1)
	}
}

// runInteractive 交互模式：打开串口，跑一个有界重试流程，打印结果退出
func runInteractive(cfg *cfgpkg.Config, log *zap.Logger, readKey string, readAll, yamlOut bool, editKey, editValue string) error {
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	addr := byte(cfg.Serial.PollAddress)

	ticks := make(chan struct{}, 1)
	var mgr *session.Manager
	tr, err := transport.Open(transport.Config{
		Device:      cfg.Serial.Device,
		ReadTimeout: cfg.Serial.ReadTimeout,
		WriteEvery:  cfg.Serial.WriteEvery,
		PollPeriod:  cliTickPeriod,
		WarnDepth:   cfg.Serial.WarnDepth,
	}, func(frame []byte) { mgr.HandleFrame(frame) }, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}, log, appm)
	if err != nil {
		return err
	}
	mgr = session.NewManager(tr, nil, nil, log, appm)
	battery := mgr.Ensure(addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- tr.Run(ctx) }()

	request := func(p seplos.Page) { tr.SendFrame(seplos.ReadPageRequest(addr, p)) }

	var run func() error
	switch {
	case readKey != "":
		fd, ok := seplos.Lookup(readKey)
		if !ok {
			return fmt.Errorf("unknown field %q", readKey)
		}
		wf := workflow.NewReadField(fd, request, battery)
		run = func() error {
			if err := drive(ctx, ticks, runErr, wf.Tick); err != nil {
				return err
			}
			fmt.Printf("%s: %v %s\n", fd.Key(), wf.Result, fd.Unit)
			return nil
		}
	case readAll:
		wf := workflow.NewReadAll(request, battery)
		run = func() error {
			if err := drive(ctx, ticks, runErr, wf.Tick); err != nil {
				return err
			}
			return printValues(battery.Values(), yamlOut)
		}
	default:
		fd, ok := seplos.Lookup(editKey)
		if !ok {
			return fmt.Errorf("unknown field %q", editKey)
		}
		newValue, err := strconv.ParseFloat(editValue, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", editValue)
		}
		wf := workflow.NewEdit(fd, newValue, request, battery, confirmOnTerminal)
		run = func() error {
			if err := drive(ctx, ticks, runErr, wf.Tick); err != nil {
				if wf.WriteOutcomeUnknown() {
					return fmt.Errorf("%w (write was sent, re-read the field to check whether it took effect)", err)
				}
				if werr := wf.Err(); werr != nil {
					return werr
				}
				return err
			}
			fmt.Printf("%s: %v -> %v (verified)\n", fd.Key(), wf.Old, wf.Verified)
			return nil
		}
	}

	return run()
}

// drive 按节拍推进流程直到离开 Pending
func drive(ctx context.Context, ticks <-chan struct{}, runErr <-chan error, tick func() workflow.Status) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			return err
		case <-ticks:
			switch tick() {
			case workflow.StatusDone:
				return nil
			case workflow.StatusFailed:
				return workflow.ErrTimeout
			case workflow.StatusAborted:
				return fmt.Errorf("aborted")
			}
		}
	}
}

// confirmOnTerminal 终端交互确认
func confirmOnTerminal(old, newValue float64) bool {
	fmt.Printf("current value %v, write %v? [y/N] ", old, newValue)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printFieldList(onlyWritable bool) {
	for _, fd := range seplos.Table() {
		if onlyWritable && !fd.Writable {
			continue
		}
		marker := " "
		if fd.Writable {
			marker = "w"
		}
		fmt.Printf("%s %-40s %-6s %s\n", marker, fd.Key(), fd.Unit, fd.Page)
	}
}

func printFieldInfo(key string) error {
	fd, ok := seplos.Lookup(key)
	if !ok {
		return fmt.Errorf("unknown field %q", key)
	}
	fmt.Printf("key:       %s\n", fd.Key())
	fmt.Printf("name:      %s\n", fd.Name)
	fmt.Printf("page:      %s\n", fd.Page)
	fmt.Printf("unit:      %s\n", fd.Unit)
	fmt.Printf("precision: %v\n", fd.Precision)
	fmt.Printf("writable:  %v\n", fd.Writable)
	return nil
}

func printValues(values map[string]float64, yamlOut bool) error {
	if yamlOut {
		out, err := yaml.Marshal(values)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-40s %v\n", k, values[k])
	}
	return nil
}
