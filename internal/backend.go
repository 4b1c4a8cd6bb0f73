package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/markusressel/qadc2go/internal/api"
	"github.com/markusressel/qadc2go/internal/configuration"
	"github.com/markusressel/qadc2go/internal/control"
	"github.com/markusressel/qadc2go/internal/persistence"
	"github.com/markusressel/qadc2go/internal/statistics"
	"github.com/markusressel/qadc2go/internal/ui"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func RunDaemon() {
	config := &configuration.CurrentConfig
	if usesGpio(config) && getProcessOwner() != "root" {
		ui.Warning("GPIO access usually requires root permissions, consider running qadc2go as root")
	}

	pers := persistence.NewPersistence(config.DbPath)
	if err := pers.Init(); err != nil {
		ui.Warning("Calibration data will not be persisted: %v", err)
		pers = nil
	}

	daemon, err := NewDaemon(config, pers)
	if err != nil {
		ui.Fatal("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := daemon.Run(ctx); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
	ui.Info("Done.")
}

// Daemon runs every configured instance together with the servers that
// expose them.
type Daemon struct {
	config    *configuration.Configuration
	Instances []*Instance
	Registry  *api.Registry
}

// NewDaemon creates all configured instances. If pers is nil, calibrations
// are not persisted.
func NewDaemon(config *configuration.Configuration, pers persistence.Persistence) (*Daemon, error) {
	d := &Daemon{
		config:   config,
		Registry: api.NewRegistry(),
	}
	for _, instanceConfig := range config.Instances {
		instance, err := CreateInstance(config, instanceConfig, pers, false)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("unable to create QADC %s: %w", instanceConfig.ID, err)
		}
		ui.Info("QADC %s: %d %s channel(s)", instanceConfig.ID, instance.Converter.NumChannels(), instanceConfig.Type)
		d.Instances = append(d.Instances, instance)
		d.Registry.Add(&api.Instance{
			Id:        instanceConfig.ID,
			Type:      string(instanceConfig.Type),
			Scheduler: instance.Scheduler,
			Control:   instance.Control,
			Board:     instance.Board,
		})
	}
	if len(d.Instances) == 0 {
		return nil, errors.New("no valid QADC configurations, exiting")
	}
	return d, nil
}

// close releases the instances of a daemon that never ran
func (d *Daemon) close() {
	for _, instance := range d.Instances {
		_ = instance.Converter.Close()
		_ = instance.Close()
	}
}

// Run blocks until ctx is done or an instance fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	{
		if d.config.Statistics.Enabled {
			// === Prometheus Exporter
			sources := make([]statistics.Source, len(d.Instances))
			for i, instance := range d.Instances {
				sources[i] = instance.Scheduler
			}
			if err := statistics.Register(statistics.NewQadcCollector(sources)); err != nil {
				return fmt.Errorf("cannot register statistics: %w", err)
			}

			port := d.config.Statistics.Port
			if port <= 0 || port >= 65535 {
				port = 9000
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
			addServer(&g, "statistics", server)
		}
	}
	{
		if d.config.Api.Enabled {
			// === REST API
			rest := api.CreateRestService(d.Registry, prometheus.DefaultRegisterer)
			addr := net.JoinHostPort(d.config.Api.Host, strconv.Itoa(d.config.Api.Port))
			server := &http.Server{Addr: addr, Handler: rest}
			addServer(&g, "api", server)
		}
	}
	{
		if d.config.Profiling.Enabled {
			// === pprof
			mux := http.NewServeMux()
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			addr := net.JoinHostPort(d.config.Profiling.Host, strconv.Itoa(d.config.Profiling.Port))
			server := &http.Server{Addr: addr, Handler: mux}
			addServer(&g, "profiling", server)
		}
	}
	{
		// === QADC workers
		for _, instance := range d.Instances {
			i := instance
			g.Add(func() error {
				err := i.Scheduler.Run(ctx)
				if closeErr := i.Close(); closeErr != nil {
					ui.Warning("Error closing QADC %s: %v", i.Config.ID, closeErr)
				}
				if err != nil {
					return fmt.Errorf("QADC %s failed: %w", i.Config.ID, err)
				}
				ui.Info("QADC %s stopped.", i.Config.ID)
				d.Registry.Remove(i.Config.ID)
				// an instance leaving on EXIT does not take down the others
				<-ctx.Done()
				return nil
			}, func(err error) {
				cancel()
			})
		}
	}
	{
		// === serial bridges
		for _, instance := range d.Instances {
			if instance.Config.Control == nil || instance.Config.Control.Serial == nil {
				continue
			}
			i := instance
			serialConfig := i.Config.Control.Serial
			port, err := control.OpenSerial(serialConfig.Port, serialConfig.BaudRate, serialConfig.ReadTimeout)
			if err != nil {
				ui.Error("QADC %s: %v", i.Config.ID, err)
				continue
			}
			g.Add(func() error {
				err := control.ServeStream(ctx, port, i.Control)
				if err != nil && !errors.Is(err, control.ErrClosed) {
					ui.Warning("Serial bridge of %s stopped: %v", i.Config.ID, err)
				}
				<-ctx.Done()
				return nil
			}, func(err error) {
				cancel()
				_ = port.Close()
			})
		}
	}
	{
		g.Add(func() error {
			<-ctx.Done()
			ui.Info("Received shutdown signal, exiting...")
			return nil
		}, func(err error) {
			cancel()
		})
	}

	return g.Run()
}

// addServer runs server as part of g.
func addServer(g *run.Group, name string, server *http.Server) {
	g.Add(func() error {
		ui.Info("Starting %s server on %s", name, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("cannot start %s server: %w", name, err)
		}
		return nil
	}, func(err error) {
		timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer timeoutCancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			ui.Warning("Error stopping %s server: %v", name, err)
		} else {
			ui.Info("%s server stopped.", name)
		}
	})
}

func usesGpio(config *configuration.Configuration) bool {
	for _, instance := range config.Instances {
		if instance.Gpio != nil {
			return true
		}
	}
	return false
}

func getProcessOwner() string {
	stdout, err := exec.Command("ps", "-o", "user=", "-p", strconv.Itoa(os.Getpid())).Output()
	if err != nil {
		ui.Warning("Error checking process owner: %v", err)
		return ""
	}
	return strings.TrimSpace(string(stdout))
}
