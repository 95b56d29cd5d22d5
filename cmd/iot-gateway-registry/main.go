package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/iot-gateway-registry/internal/pkg/application/controlurls"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/deviceregistry"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/events"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/watchdog"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/webevents"
	"github.com/diwise/iot-gateway-registry/internal/pkg/infrastructure/router"
	"github.com/diwise/iot-gateway-registry/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-gateway-registry/internal/pkg/presentation/api"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	yaml "gopkg.in/yaml.v2"
)

const serviceName string = "iot-gateway-registry"

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort

	policiesFile
	configurationFile
	snapshotFile

	dbHost
	dbUser
	dbPassword
	dbPort
	dbName
	dbSSLMode
)

type appConfig struct {
	Watchdog watchdog.Config `yaml:"watchdog"`
	Events   events.Config   `yaml:"events"`
}

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "8080",

		policiesFile:      "/opt/diwise/config/authz.rego",
		configurationFile: "/opt/diwise/config/config.yaml",
		snapshotFile:      "",

		dbHost:     "",
		dbUser:     "",
		dbPassword: "",
		dbPort:     "5432",
		dbName:     "diwise",
		dbSSLMode:  "disable",
	}
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, "json")
	defer cleanup()

	cfgFile, err := os.Open(flags[configurationFile])
	exitIf(err, logger, "could not open configuration file")

	cfg, err := parseExternalConfigFile(cfgFile)
	exitIf(err, logger, "could not parse configuration file")

	policies, err := os.Open(flags[policiesFile])
	exitIf(err, logger, "unable to open opa policy file")
	defer policies.Close()

	s, err := storage.New(ctx, storage.NewConfig(
		flags[dbHost], flags[dbUser], flags[dbPassword], flags[dbPort], flags[dbName], flags[dbSSLMode],
	))
	exitIf(err, logger, "could not connect to database")
	defer s.Close()

	err = s.CreateTables(ctx)
	exitIf(err, logger, "could not create tables")

	messenger, err := messaging.Initialize(ctx, messaging.LoadConfiguration(ctx, serviceName, logger))
	exitIf(err, logger, "failed to init messenger")
	defer messenger.Close()

	we := webevents.New()
	defer we.Shutdown()

	registry := deviceregistry.New(messenger, we)
	defer registry.Shutdown()

	if flags[snapshotFile] != "" {
		err = hydrateFromSnapshot(ctx, registry, flags[snapshotFile])
		exitIf(err, logger, "failed to hydrate registry from snapshot")
	}

	urls := controlurls.New(s, registry)
	sender := events.New(&cfg.Events)
	wd := watchdog.New(registry, messenger, sender, &cfg.Watchdog)

	messenger.Start()

	err = registry.RegisterTopicMessageHandler(ctx)
	exitIf(err, logger, "failed to register topic message handler")

	wd.Start(ctx)
	defer wd.Stop(ctx)

	r := router.New(serviceName)
	_, err = api.RegisterHandlers(ctx, r, policies, registry, urls, we)
	exitIf(err, logger, "failed to register api handlers")

	apiAddr := fmt.Sprintf("%s:%s", flags[listenAddress], flags[servicePort])
	webServer := &http.Server{Addr: apiAddr, Handler: r}

	errChan := make(chan error, 1)

	go func() {
		logger.Info("starting to listen for incoming connections", "address", apiAddr)

		err := webServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-errChan:
		exitIf(err, logger, "web server error")
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = webServer.Shutdown(shutdownCtx)
	if err != nil {
		logger.Error("failed to shutdown web server", "err", err.Error())
	}
}

func hydrateFromSnapshot(ctx context.Context, registry deviceregistry.DeviceRegistry, path string) error {
	log := logging.GetFromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var snapshot struct {
		Gateways []types.DeviceRecord `json:"gateways"`
		Nodes    []types.DeviceRecord `json:"nodes"`
	}

	err = json.Unmarshal(b, &snapshot)
	if err != nil {
		return err
	}

	log.Info("hydrating registry from snapshot", "gateways", len(snapshot.Gateways), "nodes", len(snapshot.Nodes))

	return registry.Hydrate(ctx, snapshot.Gateways, snapshot.Nodes)
}

func parseExternalConfigFile(cfgFile io.ReadCloser) (*appConfig, error) {
	defer cfgFile.Close()

	b, err := io.ReadAll(cfgFile)
	if err != nil {
		return nil, err
	}

	cfg := &appConfig{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseExternalConfig(ctx context.Context, flags flagMap) (context.Context, flagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault

	flags[listenAddress] = envOrDef(ctx, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])

	flags[policiesFile] = envOrDef(ctx, "POLICIES_FILE", flags[policiesFile])

	flags[dbHost] = envOrDef(ctx, "POSTGRES_HOST", flags[dbHost])
	flags[dbPort] = envOrDef(ctx, "POSTGRES_PORT", flags[dbPort])
	flags[dbName] = envOrDef(ctx, "POSTGRES_DBNAME", flags[dbName])
	flags[dbUser] = envOrDef(ctx, "POSTGRES_USER", flags[dbUser])
	flags[dbPassword] = envOrDef(ctx, "POSTGRES_PASSWORD", flags[dbPassword])
	flags[dbSSLMode] = envOrDef(ctx, "POSTGRES_SSLMODE", flags[dbSSLMode])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("policies", "an authorization policy file", apply(policiesFile))
	flag.Func("config", "service configuration file", apply(configurationFile))
	flag.Func("snapshot", "a registry snapshot to hydrate from", apply(snapshotFile))
	flag.Parse()

	return ctx, flags
}

func exitIf(err error, logger *slog.Logger, msg string, args ...any) {
	if err != nil {
		logger.With(args...).Error(msg, "err", err.Error())
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
