package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldttech/poscore/internal/config"
	"github.com/ldttech/poscore/internal/db"
	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/logging"
	"github.com/ldttech/poscore/internal/models"
	"github.com/ldttech/poscore/internal/pos"
	syncpkg "github.com/ldttech/poscore/internal/sync"
	"github.com/ldttech/poscore/internal/sync/queue"
	"github.com/ldttech/poscore/internal/sync/scheduler"
)

// Settings keys owned by the command layer.
const (
	settingSession      = "login_session"
	settingPOSProfile   = "pos_profile"
	settingCompanyState = "company_state"
	settingPriceList    = "selling_price_list"
)

// core bundles the wired components shared by the subcommands.
type core struct {
	database *db.DB
	repo     *db.Repository
	queue    *queue.Queue
	client   *erpnext.Client
	engine   *syncpkg.Engine
	register *pos.Register
	monitor  *scheduler.Monitor
	hub      *WSHub
}

func (c *core) close() {
	c.repo.Close()
	c.database.Close()
}

// buildCore opens storage, runs migrations, and wires the components.
// events may be nil for one-shot commands.
func buildCore(cfg *config.Config, events syncpkg.EventSink) (*core, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		database.Close()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		database.Close()
		return nil, err
	}

	repo := db.NewRepository(database.DB)
	q := queue.New(repo)

	session := models.Session{
		BaseURL:   cfg.Remote.BaseURL,
		APIKey:    cfg.Remote.APIKey,
		APISecret: cfg.Remote.APISecret,
	}
	if !session.Configured() {
		// Fall back to the session saved by the login flow. The stored
		// secret is encrypted with a machine-derived key.
		var saved storedSession
		if found, err := repo.GetSetting(settingSession, &saved); err == nil && found {
			decrypted, derr := saved.toSession()
			if derr != nil {
				logging.Warn("Saved session could not be decrypted, re-run login", map[string]interface{}{
					"user": saved.User,
				})
			} else {
				if session.BaseURL == "" {
					session.BaseURL = decrypted.BaseURL
				}
				if session.APIKey == "" {
					session.APIKey = decrypted.APIKey
					session.APISecret = decrypted.APISecret
				}
				session.User = decrypted.User
			}
		}
	}
	client := erpnext.NewClient(session)

	priceList := readStringSetting(repo, settingPriceList)
	companyState := readStringSetting(repo, settingCompanyState)

	engine := syncpkg.NewEngine(repo, q, client, events, syncpkg.Config{
		Company:    cfg.Remote.Company,
		PriceList:  priceList,
		PageLength: cfg.Sync.PageLength,
		SweepAge:   cfg.Sync.SweepAge,
	})
	if err := engine.Recover(); err != nil {
		repo.Close()
		database.Close()
		return nil, err
	}

	monitor := scheduler.NewMonitor(
		scheduler.NewHTTPProber(session.BaseURL),
		engine,
		events,
		&scheduler.Config{
			ProbeInterval: cfg.Sync.ProbeInterval,
			SyncInterval:  cfg.Sync.Interval,
		},
	)

	register := pos.NewRegister(repo, q, client, monitor.IsOnline, pos.Config{
		Company:      cfg.Remote.Company,
		CompanyState: companyState,
	})

	return &core{
		database: database,
		repo:     repo,
		queue:    q,
		client:   client,
		engine:   engine,
		register: register,
		monitor:  monitor,
	}, nil
}

// readStringSetting reads an optional string setting. A storage or
// decode failure is logged and treated as unset so the daemon still
// comes up.
func readStringSetting(repo *db.Repository, key string) string {
	var value string
	if _, err := repo.GetSetting(key, &value); err != nil {
		logging.Error("Failed to read setting", err, map[string]interface{}{
			"key": key,
		})
	}
	return value
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the POS core daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		hub := NewWSHub()

		c, err := buildCore(cfg, hub)
		if err != nil {
			return err
		}
		defer c.close()
		c.hub = hub

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c.monitor.Start(ctx)
		defer c.monitor.Stop()

		srv := &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      newRouter(c),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logging.Info("POS core listening", map[string]interface{}{
				"addr": cfg.ListenAddr,
			})
			errCh <- srv.ListenAndServe()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			logging.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	},
}
