package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/confchannel/confcommon"
	"github.com/ruteri/confchannel/keyprovider"
	"github.com/ruteri/confchannel/session"
	"github.com/ruteri/confchannel/wire"
)

var flags = []cli.Flag{
	&cli.StringFlag{
		Name:     "server-addr",
		Required: true,
		Usage:    "base URL of the channelserver, e.g. http://127.0.0.1:8080",
	},
	&cli.StringFlag{
		Name:  "service-id",
		Value: "confchannel-server",
		Usage: "service identifier expected from the server",
	},
	&cli.StringFlag{
		Name:  "message",
		Value: "ping",
		Usage: "plaintext payload to send",
	},
	&cli.BoolFlag{
		Name:  "require-attestation",
		Value: false,
		Usage: "fail the handshake if the server presents no attestation quote",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Value: 10 * time.Second,
		Usage: "HTTP request timeout",
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
}

func postChannel(httpClient *http.Client, baseURL string, body []byte) ([]byte, error) {
	resp, err := httpClient.Post(baseURL+"/v1/channel", "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func main() {
	app := &cli.App{
		Name:  "channelclient",
		Usage: "Perform a confidential-channel handshake and send one request",
		Flags: flags,
		Action: func(cCtx *cli.Context) error {
			logger := confcommon.SetupLogger(&confcommon.LoggingOpts{
				Debug:   cCtx.Bool("log-debug"),
				JSON:    cCtx.Bool("log-json"),
				Service: "confchannel-client",
				Version: confcommon.Version,
			})

			httpClient := &http.Client{Timeout: cCtx.Duration("timeout")}
			baseURL := cCtx.String("server-addr")

			kp := keyprovider.NewRandomEd25519KeyProvider()
			if err := kp.Initialize(context.Background()); err != nil {
				logger.Error("failed to initialize local key provider", "err", err)
				return err
			}

			var expectedEnclaveHash, expectedSignerPEM []byte

			client, err := session.NewClient(kp, nil, expectedSignerPEM, expectedEnclaveHash, []byte(cCtx.String("service-id")), cCtx.Bool("require-attestation"))
			if err != nil {
				logger.Error("failed to construct client", "err", err)
				return err
			}

			keyReqBytes, err := client.MakeKeyRequest()
			if err != nil {
				logger.Error("failed to build key request", "err", err)
				return err
			}

			keyRespBytes, err := postChannel(httpClient, baseURL, keyReqBytes)
			if err != nil {
				logger.Error("key request failed", "err", err)
				return err
			}

			if _, err := client.HandleMessage(context.Background(), keyRespBytes); err != nil {
				logger.Error("key response rejected", "err", err)
				return err
			}
			if cCtx.Bool("require-attestation") {
				decoded, _ := wire.Decode(keyRespBytes) // already accepted by HandleMessage above
				keyResp, _ := decoded.Body.(wire.KeyResponse)
				hasQuote := false
				for _, e := range keyResp.Authenticator {
					hasQuote = hasQuote || e.Type == wire.EvidenceTypeQuote
				}
				if !hasQuote {
					err := errors.New("server presented no attestation quote")
					logger.Error("key response rejected", "err", err)
					return err
				}
			}
			logger.Info("handshake complete")

			reqBytes, err := client.MakeRequest([]byte(cCtx.String("message")))
			if err != nil {
				logger.Error("failed to seal request", "err", err)
				return err
			}

			respBytes, err := postChannel(httpClient, baseURL, reqBytes)
			if err != nil {
				logger.Error("request failed", "err", err)
				return err
			}

			result, err := client.HandleMessage(context.Background(), respBytes)
			if err != nil {
				logger.Error("failed to open response", "err", err)
				return err
			}

			if result.KeyOutdated {
				logger.Warn("server reports the key used for this response is outdated; a fresh handshake is recommended")
			}

			fmt.Println(string(result.Payload))
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
