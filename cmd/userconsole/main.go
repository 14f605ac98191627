package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/WailSalutem-Health-Care/user-directory/internal/config"
	"github.com/WailSalutem-Health-Care/user-directory/internal/console"
	"github.com/WailSalutem-Health-Care/user-directory/internal/directory"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/session"
	"github.com/WailSalutem-Health-Care/user-directory/internal/storage"
	"github.com/WailSalutem-Health-Care/user-directory/internal/telemetry"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

var (
	logger     = logrus.New()
	debug      bool
	configPath string
)

func init() {
	flag.BoolVar(&debug, "debug", false, "Enable debug log level")
	flag.StringVar(&configPath, "config", os.Getenv("USERDIRECTORY_CONFIG"), "Path to YAML config file")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: userconsole [flags] <command> [args]

Commands:
  login            log in and cache the user list
  logout           clear the stored session
  whoami           show the logged-in user
  list             fetch and show all users
  search KEYWORD   filter the cached user list
  show USERNAME    show one user
  add              create a user
  edit USERNAME    change a user
  edit-profile     change your own profile
  delete USERNAME  delete a user
  reset-password EMAIL
  upload-image FILE

Flags:
`)
	flag.PrintDefaults()
}

// app holds everything a command needs. Close releases it.
type app struct {
	cfg        config.Config
	store      storage.Store
	session    *session.Store
	cache      *users.Cache
	client     *directory.Client
	controller *console.Controller
	publisher  *notification.Publisher
	provider   *telemetry.Provider
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	provider, err := telemetry.InitProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.provider = provider

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warnf("Metrics disabled: %v", err)
		metrics = nil
	}

	a.store, err = storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage: %w", err)
	}
	a.session = session.New(a.store)
	a.cache = users.NewCache(a.store)

	opts := directory.Options{
		BaseURL: cfg.Directory.BaseURL,
		Timeout: cfg.Directory.Timeout,
		Tokens:  a.session,
	}
	if metrics != nil {
		opts.Metrics = metrics
	}
	a.client, err = directory.NewClient(opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	var noteMetrics notification.MetricsRecorder
	if metrics != nil {
		noteMetrics = metrics
	}
	notifiers := notification.Multi{consoleNotifier(noteMetrics)}
	if cfg.Notify.Backend == config.NotifyRabbitMQ {
		p, err := notification.NewPublisher(cfg.Notify.RabbitMQURL, cfg.Notify.Exchange)
		if err != nil {
			logger.Warnf("RabbitMQ unavailable, notifications stay local: %v", err)
		} else {
			a.publisher = p
			notifiers = append(notifiers, notification.NewBrokerNotifier(p))
		}
	}

	deps := console.Deps{
		Directory: a.client,
		Session:   a.session,
		Cache:     a.cache,
		Notifier:  notifiers,
		OnSignal:  printSignal,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	a.controller = console.NewController(deps)
	return a, nil
}

// Close waits for pending operations and releases every resource
func (a *app) Close() error {
	var result *multierror.Error
	if a.controller != nil {
		a.controller.Wait()
		a.controller.Teardown()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.provider.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// consoleNotifier prints notifications at a log level matching their severity
func consoleNotifier(metrics notification.MetricsRecorder) notification.Notifier {
	return notification.Func(func(ctx context.Context, n notification.Notification) error {
		n = notification.New(n.Severity, n.Message)
		entry := logger.WithField("severity", string(n.Severity))
		switch n.Severity {
		case notification.SeverityError:
			entry.Error(n.Message)
		case notification.SeverityWarning:
			entry.Warn(n.Message)
		default:
			entry.Info(n.Message)
		}
		if metrics != nil {
			metrics.RecordNotification(ctx, string(n.Severity))
		}
		return nil
	})
}

func printSignal(sig console.Signal, payload interface{}) {
	logger.WithField("signal", string(sig)).Debug("view signal")
	if sig == console.SignalOpenDetail {
		if u, ok := payload.(users.User); ok {
			printUser(os.Stdout, u)
		}
	}
}

func main() {
	flag.Parse()

	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	log.SetFlags(0)
	log.SetOutput(logger.WriterLevel(logrus.DebugLevel))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal(err)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		a.Close()
		logger.Errorf("Unknown command %q", name)
		flag.Usage()
		os.Exit(2)
	}

	if cmd.needsLogin && !a.session.IsLoggedIn(ctx) {
		a.Close()
		logger.Fatal("You need to log in to access this page. Run: userconsole login")
	}

	runErr := cmd.run(ctx, a, args)
	if err := a.Close(); err != nil {
		logger.Warnf("Cleanup failed: %v", err)
	}
	if runErr != nil {
		logger.Fatal(strings.TrimSpace(runErr.Error()))
	}
}
