package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTEXEC"

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the test plan file (eg. 'plan.yaml' or 'plan.toml')",
	}
	Select = &cli.StringSliceFlag{
		Name:    "select",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SELECT"),
		Usage:   "Glob patterns over full test names (eg. 'Root/Math/**'). A pattern without wildcards also selects Explicit tests",
	}
	Category = &cli.StringSliceFlag{
		Name:    "category",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CATEGORY"),
		Usage:   "Only run tests carrying one of these categories",
	}
	Where = &cli.StringFlag{
		Name:    "where",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WHERE"),
		Usage:   "Boolean expression over id, name, fullName, path, categories, properties and runState",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of concurrent work items (0 = auto-determine from CPU count)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	WorkDir = &cli.StringFlag{
		Name:    "work-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORK_DIR"),
		Usage:   "Initial working directory of every test (defaults to the plan's directory)",
	}
	RandomSeed = &cli.Int64Flag{
		Name:    "random-seed",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RANDOM_SEED"),
		Usage:   "Initial random seed of every test (0 = derive one per run)",
	}
	ShowOutput = &cli.BoolFlag{
		Name:    "show-output",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_OUTPUT"),
		Usage:   "Print the captured output of failing tests after the results table",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Healthz listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Healthz listening port (0 disables the healthz server)",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	Select,
	Category,
	Where,
	Concurrency,
	RunInterval,
	WorkDir,
	RandomSeed,
	ShowOutput,
	HealthzAddr,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
