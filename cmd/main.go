package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testexec "github.com/ethereum-optimism/infra/op-testexec"
	"github.com/ethereum-optimism/infra/op-testexec/exitcodes"
	"github.com/ethereum-optimism/infra/op-testexec/flags"
	"github.com/ethereum-optimism/infra/op-testexec/metrics"
	"github.com/ethereum-optimism/infra/op-testexec/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-testexec"
	app.Usage = "Test Work Item Executor"
	app.Description = "op-testexec assembles and executes the tests declared in a plan file"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = exitErrHandler

	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// exitErrHandler exits with the code carried by the error. RuntimeError and
// TestFailureError carry their own; anything else counts as a test failure.
func exitErrHandler(c *cli.Context, err error) {
	var exitErr cli.ExitCoder
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		cli.HandleExitCoder(exitErr)
	default:
		cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	svcCfg := service.Config{
		HealthzHost: ctx.String(flags.HealthzAddr.Name),
		HealthzPort: ctx.Int(flags.HealthzPort.Name),
	}
	if metricsCfg.Enabled {
		svcCfg.MetricsHost = metricsCfg.ListenAddr
		svcCfg.MetricsPort = metricsCfg.ListenPort
		metrics.Debug = logCfg.Level <= log.LevelDebug
	}

	cfg, err := testexec.NewConfig(ctx, logger)
	if err != nil {
		return nil, testexec.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	exec, err := testexec.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, testexec.NewRuntimeError(fmt.Errorf("failed to create executor: %w", err))
	}

	svc := service.New(svcCfg)
	svc.Start(ctx.Context)

	return &lifecycle{Lifecycle: exec, svc: svc}, nil
}

// lifecycle stops the auxiliary servers together with the executor
type lifecycle struct {
	cliapp.Lifecycle
	svc *service.Service
}

func (l *lifecycle) Stop(ctx context.Context) error {
	err := l.Lifecycle.Stop(ctx)
	l.svc.Shutdown()
	return err
}
