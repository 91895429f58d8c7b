package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexbound/flock/internal/config"
	"github.com/hexbound/flock/internal/driver"
	"github.com/hexbound/flock/internal/engine"
	"github.com/hexbound/flock/internal/fingerprint"
	"github.com/hexbound/flock/internal/plan"
	"github.com/hexbound/flock/internal/reply"
	"github.com/hexbound/flock/internal/store"
)

// Resolve config and open the store
func openStore(cmd *cobra.Command) (*store.Store, config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	return st, cfg, nil
}

// Build a playwright-backed engine from config
func newEngine(st *store.Store, cfg config.Config) (*engine.Engine, func(), error) {
	drv, err := driver.NewPlaywright()
	if err != nil {
		return nil, nil, err
	}

	var replier reply.Generator = reply.Disabled{}
	if cfg.OpenAIKey != "" {
		opts := []reply.Option{}
		if cfg.ReplyModel != "" {
			opts = append(opts, reply.WithModel(cfg.ReplyModel))
		}
		replier = reply.NewOpenAI(cfg.OpenAIKey, opts...)
	}

	ecfg := engine.DefaultConfig()
	ecfg.Headless = cfg.Headless
	ecfg.UseProxy = cfg.UseProxy
	if cfg.GroupSize > 0 {
		ecfg.GroupSize = cfg.GroupSize
	}
	if cfg.GroupPauseSeconds > 0 {
		ecfg.GroupPause = cfg.GroupPause()
	}

	planner := plan.NewBuilder(rand.New(rand.NewSource(time.Now().UnixNano())))
	e := engine.New(st, drv, replier, planner, ecfg)
	cleanup := func() {
		if err := drv.Stop(); err != nil {
			fmt.Fprintln(os.Stderr, "stopping playwright:", err)
		}
	}
	return e, cleanup, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// Create fingerprinted identities
func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create fingerprinted browser identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			count, _ := cmd.Flags().GetInt("count")
			proxyID, _ := cmd.Flags().GetInt64("proxy")
			accountID, _ := cmd.Flags().GetInt64("account")
			interactive, _ := cmd.Flags().GetBool("interactive")
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			var pid, aid *int64
			if proxyID > 0 {
				pid = &proxyID
			}
			if accountID > 0 {
				aid = &accountID
			}

			gen := fingerprint.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())), fingerprint.DefaultPolicy())
			for i := 0; i < count; i++ {
				id, err := st.CreateIdentity(cmd.Context(), name, pid, aid, interactive, gen.Generate())
				if err != nil {
					return err
				}
				fmt.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().String("name", "", "identity name")
	cmd.Flags().Int("count", 1, "number of identities to create")
	cmd.Flags().Int64("proxy", 0, "proxy id to bind (0 = none)")
	cmd.Flags().Int64("account", 0, "account id to bind (0 = none)")
	cmd.Flags().Bool("interactive", true, "eligible for automated batches")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// List identities
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List browser identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			idents, err := st.ListIdentities(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range idents {
				last := "never"
				if id.LastInteraction != nil {
					last = id.LastInteraction.Format(time.RFC3339)
				}
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n", id.ID, id.Name, id.Status, id.Fingerprint.Timezone, last)
			}
			return nil
		},
	}
}

// Print the launch command for one identity
func newLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Print the browser launch command for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			headless, _ := cmd.Flags().GetBool("headless")
			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			ident, err := st.GetIdentity(cmd.Context(), id)
			if err != nil {
				return err
			}
			var proxy *store.Proxy
			if cfg.UseProxy && ident.ProxyID != nil {
				if p, err := st.GetProxy(cmd.Context(), *ident.ProxyID); err == nil {
					proxy = &p
				}
			}
			if !cmd.Flags().Changed("headless") {
				headless = cfg.Headless
			}
			return printJSON(driver.NewLaunchSpec(ident.ID, ident.Fingerprint, proxy, headless))
		},
	}
	cmd.Flags().String("id", "", "identity id")
	cmd.Flags().Bool("headless", true, "headless launch")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// Select the next batch without running it
func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Select the next due batch and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			intervalMin, _ := cmd.Flags().GetInt("interval")
			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if size <= 0 {
				size = cfg.BatchSize
			}
			interval := cfg.Interval()
			if intervalMin > 0 {
				interval = time.Duration(intervalMin) * time.Minute
			}

			// Selection only: no sessions run and no state changes.
			e := engine.New(st, nil, reply.Disabled{}, plan.NewBuilder(rand.New(rand.NewSource(time.Now().UnixNano()))), engine.DefaultConfig())
			batch, err := e.SelectBatch(cmd.Context(), size, interval)
			if err != nil {
				return err
			}
			return printJSON(batch)
		},
	}
	cmd.Flags().Int("size", 0, "batch size (defaults to config)")
	cmd.Flags().Int("interval", 0, "minutes until the next batch (defaults to config)")
	return cmd
}

// Run one session
func newRunSingleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-single",
		Short: "Run one interaction session for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			e, cleanup, err := newEngine(st, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome := e.RunSession(cmd.Context(), id)
			if outcome.Success() {
				fmt.Printf("session %s completed (%d command failures, %s)\n",
					outcome.IdentityID, outcome.CommandFailures, outcome.Duration.Round(time.Millisecond))
			} else {
				fmt.Printf("session %s failed: %v\n", outcome.IdentityID, outcome.Err)
			}
			return nil
		},
	}
	cmd.Flags().String("id", "", "identity id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// Run one batch
func newRunBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-batch",
		Short: "Select and run one batch of sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if size <= 0 {
				size = cfg.BatchSize
			}
			e, cleanup, err := newEngine(st, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := e.RunBatch(cmd.Context(), size)
			if err != nil {
				return err
			}
			fmt.Printf("batch complete: %d total, %d succeeded, %d failed\n",
				report.Total, report.Succeeded, report.Failed)
			return nil
		},
	}
	cmd.Flags().Int("size", 0, "batch size (defaults to config)")
	return cmd
}

// Run batches continuously until interrupted
func newStartAutomationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-automation",
		Short: "Run batches on an interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			intervalMin, _ := cmd.Flags().GetInt("interval")
			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if size <= 0 {
				size = cfg.BatchSize
			}
			interval := cfg.Interval()
			if intervalMin > 0 {
				interval = time.Duration(intervalMin) * time.Minute
			}

			e, cleanup, err := newEngine(st, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := e.RunForever(ctx, size, interval); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Println("automation stopped")
			return nil
		},
	}
	cmd.Flags().Int("size", 0, "batch size (defaults to config)")
	cmd.Flags().Int("interval", 0, "minutes between batches (defaults to config)")
	return cmd
}

// Import proxies or accounts from CSV
func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import proxies or accounts from CSV",
	}

	proxies := &cobra.Command{
		Use:   "proxies",
		Short: "Import proxies from a CSV file (host,port,username,password,protocol)",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			report, err := st.ImportProxiesCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d proxies, skipped %d\n", report.Imported, report.Skipped)
			return nil
		},
	}
	proxies.Flags().String("file", "", "CSV file to import")
	_ = proxies.MarkFlagRequired("file")

	accounts := &cobra.Command{
		Use:   "accounts",
		Short: "Import accounts from a CSV file (address,secret,provider)",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			st, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			report, err := st.ImportAccountsCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d accounts, skipped %d\n", report.Imported, report.Skipped)
			return nil
		},
	}
	accounts.Flags().String("file", "", "CSV file to import")
	_ = accounts.MarkFlagRequired("file")

	cmd.AddCommand(proxies)
	cmd.AddCommand(accounts)
	return cmd
}
