package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/actor"
	"github.com/hackgods/clinic-scheduling-engine/internal/clock"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logger"
	"github.com/hackgods/clinic-scheduling-engine/internal/pharmacy"
	"github.com/hackgods/clinic-scheduling-engine/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicctl",
		Short: "Operations tooling for the clinic scheduling engine",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(restockCmd())
	rootCmd.AddCommand(simulateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type env struct {
	cfg  config.Config
	log  *zap.Logger
	pool *pgxpool.Pool
}

func (e *env) close() {
	e.pool.Close()
	_ = e.log.Sync()
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver != config.StorePostgres {
		return nil, errors.New("clinicctl works against Postgres; set STORE_DRIVER=postgres")
	}

	zl, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(pgCtx, db.PoolOptions{
		DSN:      cfg.PostgresDSN,
		MaxConns: cfg.PostgresMaxConn,
		TimeZone: cfg.ClinicTimezone,
	})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: zl, pool: pool}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			applied, err := db.Migrate(cmd.Context(), e.pool)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			for _, name := range applied {
				e.log.Info("applied migration", zap.String("name", name))
			}
			fmt.Printf("Applied %d migration(s).\n", len(applied))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake doctors, patients, schedules and medicines",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctors, _ := cmd.Flags().GetInt("doctors")
			patients, _ := cmd.Flags().GetInt("patients")
			days, _ := cmd.Flags().GetInt("days")
			seedValue, _ := cmd.Flags().GetUint64("seed")

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			ds := seed.Generate(seed.Options{
				Doctors:  doctors,
				Patients: patients,
				Days:     days,
				Start:    clock.New(e.cfg.ClinicTimezone).Now(),
				Seed:     seedValue,
			})
			if err := seed.Insert(cmd.Context(), e.pool, ds, e.log); err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			fmt.Printf("Seeded %d doctors, %d patients, %d work intervals, %d medicines.\n",
				len(ds.Doctors), len(ds.Patients), len(ds.WorkIntervals), len(ds.Medicines))
			return nil
		},
	}
	cmd.Flags().Int("doctors", 20, "Number of doctors")
	cmd.Flags().Int("patients", 2000, "Number of patients")
	cmd.Flags().Int("days", 14, "Days of work schedule starting today")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	return cmd
}

func restockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restock <medicine-id>",
		Short: "Add units to a medicine's stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid medicine id: %w", err)
			}
			qty, _ := cmd.Flags().GetInt("quantity")

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			ledger := pharmacy.NewLedger(pharmacy.NewPgRepository(e.pool), db.NewTxManager(e.pool), e.log, nil)
			med, err := ledger.Restock(cmd.Context(), actor.Actor{ID: uuid.New(), Role: actor.RoleAdmin}, id, qty)
			if err != nil {
				return err
			}

			fmt.Printf("%s: %d on hand\n", med.Name, med.QuantityOnHand)
			return nil
		},
	}
	cmd.Flags().Int("quantity", 0, "Units to add")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}
