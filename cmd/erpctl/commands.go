package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/weavetrack/erp-api/internal/config"
	"github.com/weavetrack/erp-api/internal/database"
	"github.com/weavetrack/erp-api/internal/middleware"
	"github.com/weavetrack/erp-api/internal/repository"
	"github.com/weavetrack/erp-api/internal/services"
	"github.com/weavetrack/erp-api/internal/storage"
	"github.com/weavetrack/erp-api/pkg/logger"
)

var (
	purgeOlderThanDays int
	reconcileCompany   string
	reconcileBatch     string
	tokenUser          string
	tokenName          string
	tokenEmail         string
	tokenRole          string
	tokenCompany       string
	tokenTTL           time.Duration
	exportCompany      string
	exportFormat       string
	exportStatus       string
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}
	rootCmd.AddCommand(migrateCmd)

	purgeCmd := &cobra.Command{
		Use:   "purge-audit",
		Short: "Delete audit entries past the retention period",
		RunE:  runPurgeAudit,
	}
	purgeCmd.Flags().IntVar(&purgeOlderThanDays, "older-than-days", 0, "retention in days (defaults to AUDIT_RETENTION_DAYS)")
	rootCmd.AddCommand(purgeCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild a batch's status change log from the audit log",
		RunE:  runReconcile,
	}
	reconcileCmd.Flags().StringVar(&reconcileCompany, "company", "", "company id")
	reconcileCmd.Flags().StringVar(&reconcileBatch, "batch", "", "batch id")
	_ = reconcileCmd.MarkFlagRequired("company")
	_ = reconcileCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(reconcileCmd)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local development",
		RunE:  runToken,
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email")
	tokenCmd.Flags().StringVar(&tokenRole, "role", middleware.RoleOperator, "role")
	tokenCmd.Flags().StringVar(&tokenCompany, "company", "", "company id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(tokenCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a batch export for one company to EXPORT_DIR",
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&exportCompany, "company", "", "company id")
	exportCmd.Flags().StringVar(&exportFormat, "format", services.ExportFormatCSV, "csv, xlsx or pdf")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "only batches in this status")
	_ = exportCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(exportCmd)
}

// connect loads configuration and opens the database. The returned func
// closes the connection.
func connect() (*config.Config, *gorm.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger.SetupWithWriter(cfg.Environment, os.Stderr)

	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := database.Close(db); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}
	return cfg, db, closeFn, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, db, closeFn, err := connect()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := database.Migrate(db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
	return nil
}

func runPurgeAudit(cmd *cobra.Command, args []string) error {
	cfg, db, closeFn, err := connect()
	if err != nil {
		return err
	}
	defer closeFn()

	days := purgeOlderThanDays
	if days == 0 {
		days = cfg.AuditRetentionDays
	}

	svcs := services.NewServices(repository.NewRepositories(db), nil, cfg)
	deleted, err := svcs.Audit.PurgeExpired(cmd.Context(), days)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries older than %d days\n", deleted, days)
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	batchID, err := uuid.Parse(reconcileBatch)
	if err != nil {
		return fmt.Errorf("invalid --batch: %w", err)
	}

	cfg, db, closeFn, err := connect()
	if err != nil {
		return err
	}
	defer closeFn()

	svcs := services.NewServices(repository.NewRepositories(db), nil, cfg)
	batch, err := svcs.Batch.RebuildStatusLog(cmd.Context(), reconcileCompany, batchID)
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("batch %s not found for company %s", batchID, reconcileCompany)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANGED AT\tFROM\tTO\tBY\tREASON")
	for _, item := range batch.StatusChangeLog {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.ChangedAt.Format(time.RFC3339), item.FromStatus, item.ToStatus, item.ChangedBy, item.ChangeReason)
	}
	return w.Flush()
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Environment == "production" {
		return errors.New("refusing to sign tokens in production")
	}

	token, err := middleware.NewToken(cfg.JWTSecret, middleware.Claims{
		UserID:    tokenUser,
		Name:      tokenName,
		Email:     tokenEmail,
		Role:      tokenRole,
		CompanyID: tokenCompany,
	}, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, db, closeFn, err := connect()
	if err != nil {
		return err
	}
	defer closeFn()

	store, err := storage.NewLocalStorage(cfg.ExportDir)
	if err != nil {
		return err
	}

	svcs := services.NewServices(repository.NewRepositories(db), nil, cfg)
	file, err := svcs.Export.Export(cmd.Context(), services.BatchFilter{
		CompanyID: exportCompany,
		Status:    exportStatus,
	}, exportFormat)
	if err != nil {
		return err
	}

	rel, err := store.Save(exportCompany, file.Filename, file.Data)
	if err != nil {
		return err
	}
	path, _ := store.FullPath(rel)
	logger.Info("Export written", "company_id", exportCompany, "format", exportFormat, "path", path, "bytes", len(file.Data))
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
