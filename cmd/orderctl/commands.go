package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"orderflow/internal/config"
	"orderflow/internal/model"
	"orderflow/internal/orderflow"
	"orderflow/internal/repository"
	pkgconfig "orderflow/pkg/config"
	"orderflow/pkg/db"
	"orderflow/pkg/logger"
	"orderflow/pkg/outbox"
	"orderflow/pkg/rbac"
	"orderflow/pkg/util"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	replayEventID int64
	replayLimit   int
	adminEmail    string
	adminPassword string
	adminRole     string
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded database migrations",
		RunE:  runMigrate,
	}
	rootCmd.AddCommand(migrateCmd)

	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox maintenance",
	}
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Reset failed outbox events so the dispatcher publishes them again",
		RunE:  runReplay,
	}
	replayCmd.Flags().Int64Var(&replayEventID, "id", 0, "replay a single event by id")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 100, "max failed events to reset")
	outboxCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(outboxCmd)

	completionCmd := &cobra.Command{
		Use:   "completion ORDER_ID",
		Short: "Check whether an order meets its completion criteria",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompletion,
	}
	rootCmd.AddCommand(completionCmd)

	flowCmd := &cobra.Command{
		Use:   "flow ORDER_ID",
		Short: "Print the aggregated flow status of an order as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runFlow,
	}
	rootCmd.AddCommand(flowCmd)

	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin user management",
	}
	createAdminCmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update an admin user",
		RunE:  runCreateAdmin,
	}
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "login email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "plain text password")
	createAdminCmd.Flags().StringVar(&adminRole, "role", rbac.RoleAdmin, "role: viewer, operator or admin")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
	adminCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(adminCmd)
}

// connect 加载配置并建立连接池，调用方负责 Close
func connect() (*pgxpool.Pool, *zap.Logger, error) {
	log := logger.NewLogger()

	env := configEnv
	if env == "" {
		env = pkgconfig.GetConfigEnv()
	}
	dir := configDir
	if dir == "" {
		dir = pkgconfig.GetEnv("CONFIG_DIR", "config")
	}

	cfg, err := config.LoadFrom(env, dir)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, nil, err
	}
	return pool, log, nil
}

func parseOrderID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", arg)
	}
	return id, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	pool, log, err := connect()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer log.Sync()

	if err := db.Migrate(cmd.Context(), pool, log); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	pool, log, err := connect()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer log.Sync()

	replay := outbox.NewReplayService(outbox.NewRepository(pool), log)
	if replayEventID > 0 {
		if err := replay.ReplayEvent(cmd.Context(), replayEventID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "event %d reset to pending\n", replayEventID)
		return nil
	}

	n, err := replay.ReplayFailedEvents(cmd.Context(), replayLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d failed events reset to pending\n", n)
	return nil
}

func newService(pool *pgxpool.Pool, log *zap.Logger) *orderflow.Service {
	return orderflow.NewService(repository.NewStore(pool, log), log)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	orderID, err := parseOrderID(args[0])
	if err != nil {
		return err
	}
	pool, log, err := connect()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer log.Sync()

	ready, err := newService(pool, log).CheckOrderCompletionCriteria(cmd.Context(), orderID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "order %d ready for completion: %t\n", orderID, ready)
	return nil
}

func runFlow(cmd *cobra.Command, args []string) error {
	orderID, err := parseOrderID(args[0])
	if err != nil {
		return err
	}
	pool, log, err := connect()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer log.Sync()

	status, err := newService(pool, log).GetFlowStatus(cmd.Context(), orderID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	if !rbac.ValidRole(adminRole) {
		return fmt.Errorf("unknown role %q", adminRole)
	}
	hash, err := util.HashPassword(adminPassword)
	if err != nil {
		return err
	}

	pool, log, err := connect()
	if err != nil {
		return err
	}
	defer pool.Close()
	defer log.Sync()

	user := &model.AdminUser{Email: adminEmail, PasswordHash: hash, Role: adminRole}
	if err := repository.NewAdminUserRepository(pool, log).Upsert(cmd.Context(), user); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "admin %s saved (id=%d, role=%s)\n", user.Email, user.ID, user.Role)
	return nil
}
