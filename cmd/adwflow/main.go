// Command adwflow runs a workflow definition from the command line:
//
//	adwflow -config adwflow.yaml run detect_and_fix -input issue_id=42
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/adwhq/adwflow"
	"github.com/adwhq/adwflow/config"
	"github.com/adwhq/adwflow/internal/telemetry"
	"github.com/adwhq/adwflow/workflow"
)

type inputFlags map[string]any

func (f inputFlags) String() string { return "" }

func (f inputFlags) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("input must be key=value, got %q", value)
	}
	f[key] = val
	return nil
}

func main() {
	configPath := flag.String("config", "adwflow.yaml", "path to the engine configuration")
	inputs := inputFlags{}
	flag.Var(inputs, "input", "workflow input as key=value (repeatable)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: adwflow [-config file] [-input k=v ...] run <workflow>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("telemetry setup failed", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background()) //nolint:errcheck

	engine, err := adwflow.NewEngine(cfg, logger)
	if err != nil {
		logger.Fatal("engine setup failed", zap.Error(err))
	}
	defer engine.Close() //nolint:errcheck

	run, err := engine.RunWorkflow(ctx, args[1], inputs)
	if run != nil {
		printRun(run)
	}
	if err != nil || (run != nil && run.Status != workflow.RunSuccess) {
		os.Exit(1)
	}
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func printRun(run *workflow.Run) {
	raw, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		fmt.Println(run.ID, run.Status)
		return
	}
	fmt.Println(string(raw))
}
