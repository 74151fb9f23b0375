// Command procengine is the workflow engine's entry point: serve runs the
// supplemental HTTP adapter over the service façade, migrate applies the
// relational schema, and deploy pushes a BPMN file from the command line.
// Grounded on the reference engine's flag-driven main command startup and
// its cobra+viper CLI shape.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/user/procengine/internal/api"
	"github.com/user/procengine/internal/config"
	"github.com/user/procengine/internal/observability"
	"github.com/user/procengine/internal/service"
	storagesql "github.com/user/procengine/internal/storage/sql"
	"github.com/user/procengine/pkg/engine"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "procengine",
		Short: "procengine runs and administers the BPMN process engine",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./procengine.yaml)")

	root.AddCommand(serveCmd(), migrateCmd(), deployCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// sqlDriverName maps a storagesql.Driver to the database/sql driver name its
// blank import registered under.
func sqlDriverName(d storagesql.Driver) string {
	switch d {
	case storagesql.DriverPostgres:
		return "pgx"
	case storagesql.DriverMySQL:
		return "mysql"
	case storagesql.DriverSQLServer:
		return "sqlserver"
	case storagesql.DriverOracle:
		return "oracle"
	default:
		return "sqlite"
	}
}

func openDB(cfg *config.Config) (*sql.DB, storagesql.Driver, error) {
	driver, err := storagesql.ParseDriver(cfg.Storage.Driver)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(sqlDriverName(driver), cfg.Storage.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("procengine: open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.Storage.ConnMaxIdleTime)
	return db, driver, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP adapter over the process engine façade",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			shutdown, err := observability.InitOTLP(ctx, cfg.Observability)
			if err != nil {
				return fmt.Errorf("procengine: init otel: %w", err)
			}
			defer shutdown(context.Background())

			db, driver, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			eng := service.New(db, driver, service.WithLogger(engine.NewDefaultLogger()))
			srv := api.NewServer(eng, cfg.Auth, cfg.API)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			fmt.Printf("procengine listening on %s\n", cfg.API.ListenAddr)
			return srv.ListenAndServe(ctx, cfg.API.ListenAddr)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply the relational schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, _, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if _, err := db.ExecContext(cmd.Context(), storagesql.Schema); err != nil {
				return fmt.Errorf("procengine: apply schema: %w", err)
			}
			fmt.Println("schema applied")
			return nil
		},
	}
}

func deployCmd() *cobra.Command {
	var deployer, company string
	cmd := &cobra.Command{
		Use:   "deploy <name> <bpmn-file>",
		Short: "deploy a BPMN file as a new process definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, driver, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			xml, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("procengine: read %s: %w", args[1], err)
			}

			eng := service.New(db, driver)
			procDef, err := eng.CreateProcDef(cmd.Context(), args[0], deployer, company, xml)
			if err != nil {
				return err
			}
			fmt.Printf("deployed %s as procdef %s (key=%s)\n", args[1], procDef.ID, procDef.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&deployer, "deployer", "cli", "deployer user id recorded on the deployment")
	cmd.Flags().StringVar(&company, "company", "default", "company id scoping the process definition")
	return cmd
}

func init() {
	viper.SetEnvPrefix("PROCENGINE")
	viper.AutomaticEnv()
}
