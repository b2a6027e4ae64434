package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"

	mcpE "github.com/flarexio/docrag/mcp"
	httpT "github.com/flarexio/docrag/transport/http"
	natsT "github.com/flarexio/docrag/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "docrag",
		Usage: "Document retrieval and question answering",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the docrag service",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve docrag over NATS and HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "nats",
						Usage:   "NATS server URL, NATS transport is disabled when empty",
						Sources: cli.EnvVars("NATS_URL"),
					},
					&cli.BoolFlag{
						Name:  "http",
						Usage: "Enable HTTP transport",
						Value: false,
					},
					&cli.StringFlag{
						Name:  "http-addr",
						Usage: "HTTP server address",
						Value: ":8080",
					},
				},
				Action: serve,
			},
			{
				Name:   "ingest",
				Usage:  "Ingest the source directory into the collection",
				Action: ingest,
			},
			{
				Name:      "search",
				Usage:     "Search the collection",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
					},
					&cli.Float32Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score",
					},
				},
				Action: search,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the collection",
				ArgsUsage: "<question>",
				Action:    ask,
			},
			{
				Name:   "reset",
				Usage:  "Empty the collection",
				Action: reset,
			},
			{
				Name:  "inspect",
				Usage: "Show the collection size and a few stored chunks",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "sample",
						Usage: "Number of stored chunks to show",
						Value: docrag.DefaultSampleSize,
					},
				},
				Action: inspect,
			},
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

var servicePath string

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ctx, err
		}

		path = filepath.Join(homeDir, ".flarex", "docrag")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return ctx, err
	}

	zap.ReplaceGlobals(log)

	if err := loadEnv(path); err != nil {
		return ctx, err
	}

	servicePath = path
	return ctx, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func localService(requireCompleter bool) (docrag.Service, error) {
	svc, err := newService(servicePath, requireCompleter)
	if err != nil {
		return nil, err
	}

	return docrag.LoggingMiddleware(zap.L())(svc), nil
}

func query(cmd *cli.Command) (string, error) {
	q := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if q == "" {
		return "", docrag.ErrEmptyQuery
	}

	return q, nil
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	defer zap.L().Sync()

	svc, err := localService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Ingest(ctx)
	if err != nil {
		return err
	}

	return printJSON(report)
}

func search(ctx context.Context, cmd *cli.Command) error {
	defer zap.L().Sync()

	q, err := query(cmd)
	if err != nil {
		return err
	}

	svc, err := localService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	var threshold []float32
	if cmd.IsSet("threshold") {
		threshold = append(threshold, cmd.Float32("threshold"))
	}

	hits, err := svc.Search(ctx, q, cmd.Int("limit"), threshold...)
	if err != nil {
		return err
	}

	return printJSON(hits)
}

func ask(ctx context.Context, cmd *cli.Command) error {
	defer zap.L().Sync()

	q, err := query(cmd)
	if err != nil {
		return err
	}

	svc, err := localService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	answer, err := svc.Answer(ctx, q, nil)
	if err != nil {
		return err
	}

	return printJSON(docrag.AnswerResponse{
		Query:  q,
		Answer: answer,
	})
}

func reset(ctx context.Context, cmd *cli.Command) error {
	defer zap.L().Sync()

	svc, err := localService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Reset(ctx)
}

func inspect(ctx context.Context, cmd *cli.Command) error {
	defer zap.L().Sync()

	svc, err := localService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.CollectionInfo(ctx, cmd.Int("sample"))
	if err != nil {
		return err
	}

	return printJSON(info)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	log := zap.L()
	defer log.Sync()

	svc, err := newService(servicePath, false)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc = docrag.LoggingMiddleware(log)(svc)
	svc = docrag.InstrumentingMiddleware(docrag.NewPrometheusMetrics("docrag"))(svc)

	endpoints := docrag.MakeEndpoints(svc)

	natsURL := cmd.String("nats")
	httpEnabled := cmd.Bool("http")

	if natsURL == "" && !httpEnabled {
		return errors.New("no transport enabled, set --nats or --http")
	}

	// Add NATS Transport
	if natsURL != "" {
		edgeID := "local"
		if idBytes, err := os.ReadFile(filepath.Join(servicePath, "id")); err == nil {
			edgeID = strings.TrimSpace(string(idBytes))
		}

		opts := []nats.Option{
			nats.Name("docrag Server - " + edgeID),
		}

		natsCreds := filepath.Join(servicePath, "user.creds")
		if _, err := os.Stat(natsCreds); err == nil {
			opts = append(opts, nats.UserCredentials(natsCreds))
		}

		nc, err := nats.Connect(natsURL, opts...)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "docrag",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		topic := "edges." + edgeID + ".docrag"

		root := srv.AddGroup(topic)
		natsT.AddEndpoints(root, endpoints)

		log.Info("nats transport enabled", zap.String("topic", topic))
	}

	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)
		httpT.AddMetricsRouter(r)
		httpT.AddStreamableRouters(r, mcpE.MakeEndpoints(svc))

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)

		log.Info("http transport enabled", zap.String("addr", httpAddr))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}
