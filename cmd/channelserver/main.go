package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/confchannel/attestation"
	"github.com/ruteri/confchannel/confcommon"
	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/confserver"
	"github.com/ruteri/confchannel/keyprovider"
	"github.com/ruteri/confchannel/secretstore"
	"github.com/ruteri/confchannel/session"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the confidential channel API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:  "service-id",
		Value: "confchannel-server",
		Usage: "service identifier bound into the attestation report_data",
	},
	&cli.StringFlag{
		Name:  "key-provider",
		Value: "random-ed25519",
		Usage: "static | random | random-ed25519 | secretstore-soft | secretstore-hsm",
	},
	&cli.StringFlag{
		Name:  "static-key",
		Value: "",
		Usage: "hex-encoded 32-byte key, required when key-provider=static",
	},
	&cli.StringFlag{
		Name:  "vault-addr",
		Value: "",
		Usage: "HashiCorp Vault address, required for secretstore-soft",
	},
	&cli.StringFlag{
		Name:  "vault-token",
		Value: "",
		Usage: "HashiCorp Vault token",
	},
	&cli.StringFlag{
		Name:  "vault-mount",
		Value: "secret",
		Usage: "HashiCorp Vault KV v2 mount point",
	},
	&cli.StringFlag{
		Name:  "secret-name",
		Value: "confchannel-key",
		Usage: "secret name within the vault mount",
	},
	&cli.BoolFlag{
		Name:  "enable-attestation",
		Value: false,
		Usage: "produce a DCAP TDX quote binding public_key||service_id into report_data",
	},
	&cli.DurationFlag{
		Name:  "sync-interval",
		Value: keyprovider.DefaultSyncInterval,
		Usage: "interval between sync-only key refresh checks",
	},
	&cli.DurationFlag{
		Name:  "rollover-interval",
		Value: 24 * time.Hour,
		Usage: "minimum age before a key refresh is allowed to rotate rather than sync",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: "confchannel-server",
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func buildKeyProvider(cCtx *cli.Context) (keyprovider.KeyProvider, error) {
	switch kind := cCtx.String("key-provider"); kind {
	case "static":
		seedHex := cCtx.String("static-key")
		if seedHex == "" {
			return nil, errors.New("static-key is required for key-provider=static")
		}
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("invalid static-key: %w", err)
		}
		return keyprovider.NewStaticKeyProvider(seed, confcrypto.KeyTypeCurve25519)
	case "random":
		return keyprovider.NewRandomKeyProvider(), nil
	case "random-ed25519":
		return keyprovider.NewRandomEd25519KeyProvider(), nil
	case "secretstore-soft":
		var transport secretstore.Transport
		if token := cCtx.String("vault-token"); token != "" {
			vaultTransport, err := secretstore.NewVaultTransport(cCtx.String("vault-addr"), token, cCtx.String("vault-mount"), nil)
			if err != nil {
				return nil, fmt.Errorf("failed to build vault transport: %w", err)
			}
			transport = vaultTransport
		} else {
			transport = secretstore.NewChallengeTransport(nil)
		}
		store := secretstore.NewSoftStore(transport, cCtx.String("vault-addr"), cCtx.String("secret-name"))
		return keyprovider.NewSecretStoreKeyProvider(store), nil
	case "secretstore-hsm":
		return nil, errors.New("key-provider=secretstore-hsm requires a QuoteProducer wired in process; not exposed over CLI flags")
	default:
		return nil, fmt.Errorf("unknown key-provider: %s", kind)
	}
}

func main() {
	app := &cli.App{
		Name:  "channelserver",
		Usage: "Serve the confidential channel handshake and request API",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := confcommon.SetupLogger(&confcommon.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: cCtx.String("log-service"),
				Version: confcommon.Version,
			})
			if cCtx.Bool("log-uid") {
				logger = confcommon.WithCorrelationID(logger)
			}

			kp, err := buildKeyProvider(cCtx)
			if err != nil {
				logger.Error("failed to build key provider", "err", err)
				return err
			}
			if err := kp.Initialize(context.Background()); err != nil {
				logger.Error("failed to initialize key provider", "err", err)
				return err
			}

			var producer attestation.Producer
			if cCtx.Bool("enable-attestation") {
				producer = &attestation.DCAPProducer{}
			}

			sess, err := session.New(
				context.Background(),
				[]byte(cCtx.String("service-id")),
				func(_ context.Context, plaintext []byte) ([]byte, error) { return plaintext, nil },
				kp,
				producer,
			)
			if err != nil {
				logger.Error("failed to start session server", "err", err)
				return err
			}

			cfg := &confserver.Config{
				ListenAddr:               cCtx.String("listen-addr"),
				MetricsAddr:              cCtx.String("metrics-addr"),
				Log:                      logger,
				EnablePprof:              cCtx.Bool("pprof"),
				DrainDuration:            time.Duration(cCtx.Int64("drain-seconds")) * time.Second,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			srv, err := confserver.New(cfg, sess, "confchannel")
			if err != nil {
				logger.Error("failed to create server", "err", err)
				return err
			}

			ctx, cancelRefresh := context.WithCancel(context.Background())
			defer cancelRefresh()
			go srv.RefreshLoop(ctx, cCtx.Duration("sync-interval"), cCtx.Duration("rollover-interval"))

			logger.Info("starting server", "listenAddress", cfg.ListenAddr)
			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("shutdown signal received")

			cancelRefresh()
			srv.Shutdown()
			logger.Info("server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
