package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/natsfixture/internal/events"
	"github.com/nerrad567/natsfixture/internal/infrastructure/config"
	"github.com/nerrad567/natsfixture/internal/infrastructure/logging"
	"github.com/nerrad567/natsfixture/internal/options"
	"github.com/nerrad567/natsfixture/internal/portalloc"
	"github.com/nerrad567/natsfixture/internal/supervisor"
)

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	name       string
	set        []string
	logLevel   string

	cfg       *config.Config
	overrides map[string]string
	log       *logging.Logger
	stdout    io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "natsfixture",
		Short: "Download, configure and supervise nats-server instances",
		Long: `natsfixture launches nats-server for tests and local development.

Server options are merged from defaults, NATS_<KEY> environment variables,
property files and --set values, in increasing order of precedence. The
server binary is downloaded for the running platform when it is missing.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\ncommit: %s\nbuilt: %s\nplatform: %s/%s\n",
		commit, date, runtime.GOOS, runtime.GOARCH))

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", os.Getenv(configEnv), "config file (default from "+configEnv+")")
	pf.StringVar(&a.name, "name", "", "instance name, overrides instance.name")
	pf.StringArrayVarP(&a.set, "set", "s", nil, "server option KEY=VALUE at explicit precedence (repeatable)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newRunCommand(a),
		newDownloadCommand(a),
		newExtractCommand(a),
		newPortCommand(a),
		newCommandCommand(a),
		newKeysCommand(a),
		newHistoryCommand(a),
		newTokenCommand(a),
		newWatchCommand(a),
	)
	return root
}

// init loads configuration and builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	a.stdout = cmd.OutOrStdout()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.name != "" {
		cfg.Instance.Name = a.name
	}
	a.cfg = cfg

	a.overrides, err = parseOverrides(a.set)
	if err != nil {
		return err
	}

	logOut := cmd.ErrOrStderr()
	if strings.EqualFold(cfg.Logging.Output, "stdout") {
		logOut = cmd.OutOrStdout()
	}
	a.log = logging.NewWithWriter(logOut, cfg.Logging, version)

	// --log-level wins over NATS_LOG_LEVEL, which wins over the config file.
	switch {
	case a.logLevel != "":
		a.log.SetLevel(a.logLevel)
	case a.overrides[options.LogLevel.Name] != "":
		a.log.SetLevel(a.overrides[options.LogLevel.Name])
	default:
		a.log.SetLevel(os.Getenv(options.EnvName(options.LogLevel)))
	}
	return nil
}

// parseOverrides turns KEY=VALUE pairs into option values keyed by
// canonical option name.
func parseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want KEY=VALUE", pair)
		}
		k, ok := options.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("--set %q: %w", pair, options.ErrUnknownKey)
		}
		out[k.Name] = value
	}
	return out, nil
}

// instanceName names instance i. Several instances get numbered names.
func (a *app) instanceName(i int) string {
	name := a.cfg.Instance.Name
	if a.cfg.Instance.Count <= 1 {
		return name
	}
	if name == "" {
		name = "nats"
	}
	return fmt.Sprintf("%s-%d", name, i+1)
}

func (a *app) supervisorConfig(i int, sink events.Sink) supervisor.Config {
	inst := a.cfg.Instance

	opts := inst.ServerOptions()
	for k, v := range a.overrides {
		opts[k] = v
	}

	sc := supervisor.Config{
		Name:        a.instanceName(i),
		TempRoot:    inst.TempDir,
		Options:     opts,
		FileOptions: inst.Options,
		Args:        inst.Args,
		Sink:        sink,
	}
	if inst.StartTimeoutMS > 0 {
		t := portalloc.After(inst.StartTimeout())
		sc.StartTimeout = &t
	}
	if inst.StopTimeoutMS > 0 {
		t := portalloc.After(inst.StopTimeout())
		sc.StopTimeout = &t
	}
	return sc
}

// newSupervisors creates instance.count stopped supervisors.
func (a *app) newSupervisors(sink events.Sink) ([]*supervisor.Supervisor, error) {
	sups := make([]*supervisor.Supervisor, 0, a.cfg.Instance.Count)
	for i := 0; i < a.cfg.Instance.Count; i++ {
		s, err := supervisor.New(a.supervisorConfig(i, sink))
		if err != nil {
			return nil, fmt.Errorf("configuring instance %d: %w", i+1, err)
		}
		s.SetLogger(a.log.With("component", "supervisor"))
		sups = append(sups, s)
	}
	return sups, nil
}
