package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcsh-server/auth"
	"mcsh-server/config"
	"mcsh-server/db"
	"mcsh-server/directory"
	"mcsh-server/exam"
	"mcsh-server/graph"
	"mcsh-server/handlers"
	"mcsh-server/ingestion"
	"mcsh-server/logger"
	"mcsh-server/memstore"
	"mcsh-server/models"
	"mcsh-server/policy"
)

// store is everything the services and the HTTP layer read and write.
// *db.DB and *memstore.Store both implement it.
type store interface {
	directory.Store
	exam.Store
	ingestion.Store
	handlers.Store
}

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store store
	close func()
}

var rootCmd = &cobra.Command{
	Use:           "mcsh-server",
	Short:         "School examination server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd(), migrateCmd(), importCmd(), createUserCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, memory bool) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, close: func() { _ = log.Sync() }}
	if memory {
		log.Warn("using in-memory store; data is lost on exit")
		a.store = memstore.New()
		return a, nil
	}
	d, err := db.InitDB(ctx, cfg.DatabaseURL, log.Named("db"))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	a.store = d
	a.close = func() {
		d.Close()
		_ = log.Sync()
	}
	return a, nil
}

func (a *app) hasher() auth.Hasher { return auth.Hasher{Cost: a.cfg.Auth.BcryptCost} }

func (a *app) directory(pol *policy.Evaluator) *directory.Service {
	tokens := auth.NewTokenManager(a.cfg.Auth.JWTSigningKey, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
	return directory.NewService(a.store, pol, tokens, a.hasher(), a.log.Named("directory"),
		directory.WithSignup(a.cfg.Auth.AllowSignup))
}

func serveCmd() *cobra.Command {
	var memory bool
	var adminEmail, adminPassword string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL and admin HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, memory)
			if err != nil {
				return err
			}
			defer a.close()
			if d, ok := a.store.(*db.DB); ok {
				if err := d.CreateSchema(ctx); err != nil {
					return fmt.Errorf("creating database schema: %w", err)
				}
			}

			pol := policy.New(a.store)
			dir := a.directory(pol)
			if memory {
				if err := seedAdmin(ctx, a, dir, adminEmail, adminPassword); err != nil {
					return err
				}
			}
			return serve(ctx, a, pol, dir)
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep all data in memory instead of PostgreSQL")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "admin@localhost", "admin account created in --memory mode")
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for --admin-email (generated when empty)")
	return cmd
}

func seedAdmin(ctx context.Context, a *app, dir *directory.Service, email, password string) error {
	if password == "" {
		password = uuid.NewString()
		a.log.Warn("generated admin password", zap.String("email", email), zap.String("password", password))
	}
	_, err := dir.Bootstrap(ctx, directory.CreateUserInput{
		FirstName: "Admin", LastName: "User", Email: email, Password: password, Role: models.RoleAdmin,
	})
	return err
}

func serve(ctx context.Context, a *app, pol *policy.Evaluator, dir *directory.Service) error {
	gin.SetMode(a.cfg.GinMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	exams := exam.NewService(a.store, pol, a.log.Named("exam"), exam.NewMetrics(reg))

	router := handlers.NewRouter(handlers.RouterConfig{
		Schema:      graph.NewSchema(graph.NewResolver(exams, dir, a.log)),
		Tokens:      auth.NewTokenManager(a.cfg.Auth.JWTSigningKey, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL),
		Store:       a.store,
		Importer:    ingestion.NewImporter(a.store, pol, a.log),
		Gatherer:    reg,
		Log:         a.log,
		Playground:  a.cfg.PlaygroundEnabled,
		CORSOrigins: a.cfg.CORS.AllowedOrigins,
	})
	srv := &http.Server{Addr: a.cfg.ServerPort, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("mcsh server starting", zap.String("addr", a.cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server startup error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server exited gracefully")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.(*db.DB).CreateSchema(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("schema is up to date")
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var creator int64
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import an exam bundle as a draft exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			u, err := a.store.GetUser(ctx, creator)
			if err != nil {
				return fmt.Errorf("creator %d: %w", creator, err)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			im := ingestion.NewImporter(a.store, policy.New(a.store), a.log)
			e, err := im.Import(ctx, models.Caller{ID: u.ID, Role: u.Role}, args[0], f)
			var verr *ingestion.ValidationError
			if errors.As(err, &verr) {
				for _, p := range verr.Problems {
					fix := ""
					if p.SuggestedFix != "" {
						fix = " (" + p.SuggestedFix + ")"
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: %s: %s%s\n", args[0], p.Line, p.Field, p.Message, fix)
				}
				return fmt.Errorf("%d problem(s) in %s", len(verr.Problems), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported exam %d %q as %s\n", e.ID, e.Title, e.Status)
			return nil
		},
	}
	cmd.Flags().Int64Var(&creator, "creator", 0, "id of the teacher or admin the exam is created for")
	_ = cmd.MarkFlagRequired("creator")
	return cmd
}

func createUserCmd() *cobra.Command {
	var in directory.CreateUserInput
	var role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account, typically the first admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			in.Role = models.Role(strings.ToUpper(role))
			u, err := a.directory(policy.New(a.store)).Bootstrap(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id %d)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "Admin", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "User", "last name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "ADMIN, TEACHER or STUDENT")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
