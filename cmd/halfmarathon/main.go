package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"github.com/urfave/cli/v2"

	"github.com/weberc2/halfmarathon/pkg/halfmarathon"
	"github.com/weberc2/halfmarathon/pkg/logger"
	"github.com/weberc2/halfmarathon/pkg/model"
	"github.com/weberc2/halfmarathon/pkg/objectstore"
	"github.com/weberc2/halfmarathon/pkg/pgextractionstore"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: logLevel()},
	)))

	app := cli.App{
		Name: appName,
		Usage: "predict a half-marathon time from a free-text description " +
			"of a runner",
		Commands: []*cli.Command{{
			Name:        "serve",
			Description: "serve the prediction form over HTTP",
			Action: withConfig(func(c *Config, ctx *cli.Context) error {
				return c.Run()
			}),
		}, {
			Name:      "predict",
			Usage:     "predict from the arguments, or from each line of stdin",
			ArgsUsage: "[description...]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name: "api-key",
					Usage: "the OpenAI API key to use when none is " +
						"configured",
				},
			},
			Action: withConfig(func(c *Config, ctx *cli.Context) error {
				return predict(c, ctx)
			}),
		}, {
			Name:        "model",
			Description: "commands for managing the model artifact",
			Subcommands: []*cli.Command{{
				Name:        "upload",
				Aliases:     []string{"put"},
				Description: "validate a model artifact and upload it",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "the model artifact JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name: "key",
						Usage: "the object key. Defaults to the configured " +
							"model key.",
					},
					&cli.StringFlag{
						Name: "name",
						Usage: "derive the object key from a name, e.g. " +
							"`Wrocław 2024` becomes `model/wroclaw-2024.json`",
					},
					&cli.BoolFlag{
						Name:  "gzip",
						Usage: "compress the artifact and append `.gz` to the key",
					},
				},
				Action: withConfig(uploadModel),
			}, {
				Name:        "list",
				Aliases:     []string{"ls"},
				Description: "list objects in the model bucket",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "only list keys with this prefix",
						Value: "model/",
					},
				},
				Action: withConfig(func(c *Config, ctx *cli.Context) error {
					store, err := c.ObjectStore()
					if err != nil {
						return err
					}
					keys, err := store.ListObjects(
						c.ModelBucket,
						ctx.String("prefix"),
					)
					if err != nil {
						return err
					}
					for _, key := range keys {
						fmt.Println(key)
					}
					return nil
				}),
			}, {
				Name: "inspect",
				Description: "load the configured model and print its " +
					"features",
				Action: withConfig(func(c *Config, ctx *cli.Context) error {
					m, err := c.ModelHandle().Model()
					if err != nil {
						return err
					}
					return printJSON(struct {
						Name            string          `json:"name"`
						Target          string          `json:"target,omitempty"`
						Estimator       string          `json:"estimator"`
						Features        []model.Feature `json:"features"`
						EncodedFeatures []string        `json:"encodedFeatures"`
					}{
						Name:            m.Name,
						Target:          m.Target,
						Estimator:       string(m.Estimator.Kind),
						Features:        m.Features,
						EncodedFeatures: m.EncodedFeatures(),
					})
				}),
			}},
		}, {
			Name:        "traces",
			Description: "commands for the postgres extraction trace table",
			Subcommands: []*cli.Command{{
				Name:        "ensure-table",
				Aliases:     []string{"ensure"},
				Description: "create the table if it doesn't already exist",
				Action: withTraceStore(func(
					store *pgextractionstore.PGExtractionStore,
					ctx *cli.Context,
				) error {
					return store.EnsureTable()
				}),
			}, {
				Name:        "list",
				Description: "list the most recent extraction traces",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "the maximum number of traces to list",
						Value: 20,
					},
				},
				Action: withTraceStore(func(
					store *pgextractionstore.PGExtractionStore,
					ctx *cli.Context,
				) error {
					traces, err := store.List(ctx.Context, ctx.Int("limit"))
					if err != nil {
						return err
					}
					return printJSON(traces)
				}),
			}},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText(
		[]byte(os.Getenv(envVarPrefix + "_LOG_LEVEL")),
	); err != nil {
		return slog.LevelInfo
	}
	return level
}

func withConfig(f func(*Config, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return f(c, ctx)
	}
}

func withTraceStore(
	f func(*pgextractionstore.PGExtractionStore, *cli.Context) error,
) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		store, err := pgextractionstore.OpenEnv()
		if err != nil {
			return fmt.Errorf("opening PGExtractionStore: %w", err)
		}
		defer store.Close()
		return f(store, ctx)
	}
}

func predict(c *Config, ctx *cli.Context) error {
	if err := c.Validate(); err != nil {
		return err
	}
	credential := ctx.String("api-key")
	if c.OpenAIAPIKey == "" && credential == "" {
		return fmt.Errorf(
			"missing required configuration: openaiAPIKey / "+
				"%s_OPENAI_API_KEY or --api-key",
			envVarPrefix,
		)
	}

	recorder, closeRecorder, err := c.Recorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	pipeline := c.Pipeline(recorder, c.ModelHandle())

	if ctx.NArg() > 0 {
		return predictOne(
			ctx.Context,
			pipeline,
			halfmarathon.Input{
				Description: strings.Join(ctx.Args().Slice(), " "),
				Credential:  credential,
			},
			os.Stdout,
		)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf(" > ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := predictOne(
			ctx.Context,
			pipeline,
			halfmarathon.Input{
				Description: scanner.Text(),
				Credential:  credential,
			},
			os.Stdout,
		); err != nil {
			// keep reading; the user can try another description
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

func predictOne(
	ctx context.Context,
	pipeline *halfmarathon.Pipeline,
	in halfmarathon.Input,
	w io.Writer,
) error {
	ctx = logger.Set(ctx, slog.Default().With("command", "predict"))
	prediction, err := pipeline.Run(ctx, in)
	if err != nil {
		return fmt.Errorf("%s", halfmarathon.AsError(err).Message)
	}

	data, err := json.MarshalIndent(prediction, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling prediction to JSON: %w", err)
	}
	if _, err := fmt.Fprintf(
		w,
		"Przewidywany czas półmaratonu: %s\n%s\n",
		prediction.Time,
		data,
	); err != nil {
		return fmt.Errorf("writing prediction: %w", err)
	}
	return nil
}

func uploadModel(c *Config, ctx *cli.Context) error {
	file := ctx.String("file")
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading model file: %w", err)
	}
	if _, err := model.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("refusing to upload `%s`: %w", file, err)
	}

	key := modelKey(c.ModelKey, ctx.String("key"), ctx.String("name"))
	s3, err := c.ObjectStore()
	if err != nil {
		return err
	}
	var store objectstore.ObjectStore = s3
	if ctx.Bool("gzip") {
		store = &objectstore.GzipObjectStore{ObjectStore: s3}
		if !strings.HasSuffix(key, ".gz") {
			key += ".gz"
		}
	}

	if err := store.PutObject(
		c.ModelBucket,
		key,
		bytes.NewReader(data),
	); err != nil {
		return err
	}
	slog.Info("uploaded model", "bucket", c.ModelBucket, "key", key)
	return nil
}

// modelKey picks the object key for an upload: an explicit key, then one
// derived from a name, then the configured key.
func modelKey(configured, key, name string) string {
	if key != "" {
		return key
	}
	if name != "" {
		return "model/" + slug.Make(name) + ".json"
	}
	return configured
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling to JSON: %w", err)
	}
	if _, err := fmt.Printf("%s\n", data); err != nil {
		return fmt.Errorf("writing JSON to stdout: %w", err)
	}
	return nil
}
