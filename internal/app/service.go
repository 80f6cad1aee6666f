package app

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/autoupdater/internal/config"
)

var (
	serviceName          string
	serviceWakeOnArrival bool

	serviceCmd = &cobra.Command{
		Use:   "service",
		Short: "Manage the autoupdater system service",
		Long: `Install and control autoupdater as a service of the operating system's service
manager (Windows services, systemd, launchd).

The installed service runs 'autoupdater service run' with the configuration,
ledger and error log paths resolved at install time, and the configuration
file's directory as its working directory.`,
		Example: `  # Install with ./config.txt and start it
  autoupdater service install
  autoupdater service start

  # Remove it again
  autoupdater service stop
  autoupdater service uninstall`,
	}

	serviceInstallCmd = &cobra.Command{
		Use:   "install",
		Short: "Install the autoupdater service",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The service would only fail at start time; report it now.
			if _, err := config.Load(getConfigPath()); err != nil {
				return err
			}
			s, err := newService(&program{}, installServiceConfig())
			if err != nil {
				return err
			}
			if err := s.Install(); err != nil {
				return fmt.Errorf("install service: %w", err)
			}
			cmd.Println("autoupdater service has been installed")
			return nil
		},
	}

	serviceUninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the autoupdater service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(&program{}, newServiceConfig())
			if err != nil {
				return err
			}
			if err := s.Uninstall(); err != nil {
				return fmt.Errorf("uninstall service: %w", err)
			}
			cmd.Println("autoupdater service has been uninstalled")
			return nil
		},
	}

	serviceStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the autoupdater service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(&program{}, newServiceConfig())
			if err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
			cmd.Println("autoupdater service has been started")
			return nil
		},
	}

	serviceStopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the autoupdater service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(&program{}, newServiceConfig())
			if err != nil {
				return err
			}
			if err := s.Stop(); err != nil {
				return fmt.Errorf("stop service: %w", err)
			}
			cmd.Println("autoupdater service has been stopped")
			return nil
		},
	}

	serviceStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show whether the autoupdater service is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(&program{}, newServiceConfig())
			if err != nil {
				return err
			}
			status, err := s.Status()
			if err != nil {
				return fmt.Errorf("get service status: %w", err)
			}
			cmd.Printf("autoupdater service is %s\n", describeServiceStatus(status))
			return nil
		},
	}

	serviceRunCmd = &cobra.Command{
		Use:    "run",
		Short:  "Run the update loop under the service manager",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(&program{}, newServiceConfig())
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
)

func init() {
	defaultServiceName := "autoupdater"
	if runtime.GOOS == "windows" {
		defaultServiceName = "AutoUpdater"
	}

	serviceCmd.PersistentFlags().StringVar(&serviceName, "name", defaultServiceName, "system service name")
	serviceInstallCmd.Flags().BoolVar(&serviceWakeOnArrival, "wake-on-arrival", false, "start a cycle as soon as a package lands in staging")
	serviceRunCmd.Flags().BoolVar(&serviceWakeOnArrival, "wake-on-arrival", false, "start a cycle as soon as a package lands in staging")

	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd, serviceStartCmd, serviceStopCmd, serviceStatusCmd, serviceRunCmd)
}

// program adapts the update loop to service.Interface. Start must not block.
type program struct {
	mu     sync.Mutex
	agent  *agent
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newAgent(ctx, serviceAgentOptions())
	if err != nil {
		cancel()
		return err
	}

	p.agent = a
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		p.done <- a.watcher.Run(ctx)
	}()
	return nil
}

// Stop lets the archive in progress finish, then releases the agent.
func (p *program) Stop(s service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}
	p.cancel()
	err := <-p.done
	p.cancel = nil

	return multierror.Append(err, p.agent.Close()).ErrorOrNil()
}

// serviceAgentOptions configure the agent run by the service manager.
// Notices must not block the loop: Stop waits for it.
func serviceAgentOptions() agentOptions {
	return agentOptions{WakeOnArrival: serviceWakeOnArrival, Background: true}
}

func newServiceConfig() *service.Config {
	return &service.Config{
		Name:        serviceName,
		DisplayName: "Auto Updater",
		Description: "Applies zip update packages to a local installation once the application has exited",
		Option:      make(service.KeyValue),
	}
}

// installServiceConfig pins every path the service depends on, since the
// service manager starts it in a directory of its own choosing.
func installServiceConfig() *service.Config {
	cfg := newServiceConfig()
	cfg.Arguments = serviceArguments()
	cfg.WorkingDirectory = filepath.Dir(getConfigPath())
	if runtime.GOOS == "windows" {
		cfg.Option["OnFailure"] = "restart"
	}
	return cfg
}

func serviceArguments() []string {
	args := []string{
		"service", "run",
		"--name", serviceName,
		"--config", getConfigPath(),
		"--db", getDBPath(),
		"--log-file", getLogPath(),
		"--log-level", logLevel,
	}
	if serviceWakeOnArrival {
		args = append(args, "--wake-on-arrival")
	}
	return args
}

func newService(prg *program, conf *service.Config) (service.Service, error) {
	s, err := service.New(prg, conf)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return s, nil
}

func describeServiceStatus(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}
