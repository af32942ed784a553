package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/natsfixture/internal/api"
	"github.com/nerrad567/natsfixture/internal/archive"
	"github.com/nerrad567/natsfixture/internal/events"
	"github.com/nerrad567/natsfixture/internal/history"
	"github.com/nerrad567/natsfixture/internal/infrastructure/database"
	"github.com/nerrad567/natsfixture/internal/infrastructure/mqtt"
	"github.com/nerrad567/natsfixture/internal/options"
	"github.com/nerrad567/natsfixture/internal/portalloc"
	"github.com/nerrad567/natsfixture/internal/supervisor"
	"github.com/nerrad567/natsfixture/migrations"
)

const redacted = "****"

func newDownloadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Make sure the server binary is present, downloading it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sups, err := a.newSupervisors(events.Discard)
			if err != nil {
				return err
			}
			seen := make(map[string]bool)
			for _, s := range sups {
				res, err := s.EnsureBinary(cmd.Context())
				if err != nil {
					return err
				}
				if seen[res.Path] {
					continue
				}
				seen[res.Path] = true
				if res.Downloaded {
					a.log.Info("binary downloaded", "path", res.Path, "url", res.SourceURL, "duration", res.Duration)
				}
				fmt.Fprintln(a.stdout, res.Path)
			}
			return nil
		},
	}
}

func newExtractCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract ARCHIVE TARGET",
		Short: "Extract the server binary from a zip, gz, tar or tar.gz archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := archive.Extract(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
}

func newPortCommand(a *app) *cobra.Command {
	var base int
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Print the first free TCP port above --base",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			port, err := portalloc.NextFree(base)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, port)
			return nil
		},
	}
	cmd.Flags().IntVar(&base, "base", supervisor.DefaultPort, "port to search above")
	return cmd
}

func newCommandCommand(a *app) *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Print the server command line for each instance without starting it",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sups, err := a.newSupervisors(events.Discard)
			if err != nil {
				return err
			}
			for _, s := range sups {
				argv, err := s.Command()
				if err != nil {
					return err
				}
				if !showSecrets {
					argv = redactSecrets(argv)
				}
				fmt.Fprintln(a.stdout, strings.Join(argv, " "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passwords and tokens in clear")
	return cmd
}

// redactSecrets masks the values of the password and token flags.
func redactSecrets(argv []string) []string {
	secret := []string{options.Pass.Flag + "=", options.Auth.Flag + "="}
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = arg
		for _, prefix := range secret {
			if strings.HasPrefix(arg, prefix) {
				out[i] = prefix + redacted
			}
		}
	}
	return out
}

func newKeysCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the server option keys with their flags and defaults",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFLAG\tKIND\tDEFAULT\tENV\tDESCRIPTION")
			for _, k := range options.Keys() {
				flag := k.Flag
				if flag == "" {
					flag = "-"
				}
				def := k.Default
				if def == "" {
					def = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					k.Name, flag, k.Kind, def, options.EnvName(k), k.Description)
			}
			return w.Flush()
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query or prune the launch history",
	}

	var (
		filter  history.Filter
		evType  string
		since   time.Duration
		asJSON  bool
		olderBy time.Duration
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded lifecycle events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeDB, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			filter.Type = events.Type(evType)
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			res, err := repo.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tINSTANCE\tTYPE\tPORT\tPID\tERROR")
			for _, e := range res.Events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					e.Time.Format(time.RFC3339), e.Instance, e.Type, e.Port, e.PID, e.Error)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&filter.Instance, "instance", "", "only this instance")
	list.Flags().StringVar(&evType, "type", "", "only this event type")
	list.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 1h")
	list.Flags().IntVar(&filter.Limit, "limit", 0, "page size (default 50)")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderBy <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			repo, closeDB, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			n, err := repo.Prune(cmd.Context(), time.Now().Add(-olderBy))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "pruned %d events\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderBy, "older-than", 30*24*time.Hour, "age of the oldest event to keep")

	cmd.AddCommand(list, prune)
	return cmd
}

// openHistory opens and migrates the history database whether or not
// history recording is enabled, so past runs stay queryable.
func (a *app) openHistory(ctx context.Context) (history.Repository, func(), error) {
	db, err := database.Open(database.Config{
		Path:        a.cfg.History.Path,
		WALMode:     a.cfg.History.WALMode,
		BusyTimeout: a.cfg.History.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, nil, fmt.Errorf("migrating history database: %w", err)
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			a.log.Error("error closing history database", "error", err)
		}
	}
	return history.NewSQLiteRepository(db.DB), closeDB, nil
}

func newTokenCommand(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API start and stop routes",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.cfg.API.JWTSecret == "" {
				return errors.New("api.jwt_secret is not set")
			}
			if ttl == 0 {
				ttl = time.Duration(a.cfg.API.TokenTTL) * time.Minute
			}
			token, err := api.IssueToken(a.cfg.API.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "natsfixture-cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.token_ttl)")
	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print lifecycle notifications from the MQTT broker until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.MQTT
			cfg.Enabled = true
			if cfg.Broker.ClientID != "" {
				cfg.Broker.ClientID += "-watch"
			}
			client, err := mqtt.Connect(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connecting to MQTT: %w", err)
			}
			defer client.Close() //nolint:errcheck // shutdown path
			client.SetLogger(a.log.With("component", "mqtt"))

			var mu sync.Mutex
			err = client.Subscribe(mqtt.Topics{}.AllInstanceEvents(), client.QoS(), func(topic string, payload []byte) error {
				mu.Lock()
				defer mu.Unlock()
				_, err := fmt.Fprintf(a.stdout, "%s %s\n", topic, payload)
				return err
			})
			if err != nil {
				return err
			}
			<-cmd.Context().Done()
			return nil
		},
	}
}
