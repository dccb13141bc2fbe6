package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	pz "github.com/weberc2/httpeasy"
	"gopkg.in/yaml.v2"

	"github.com/weberc2/halfmarathon/pkg/halfmarathon"
	"github.com/weberc2/halfmarathon/pkg/model"
	"github.com/weberc2/halfmarathon/pkg/objectstore"
	"github.com/weberc2/halfmarathon/pkg/pgextractionstore"
)

const (
	envVarPrefix = "HALFMARATHON"
	appName      = "halfmarathon"
)

// Each setting is read from `HALFMARATHON_<NAME>` or, failing that, from
// `<NAME>` so the usual `OPENAI_API_KEY` and `AWS_*` variables work.
type Config struct {
	Addr             string        `envconfig:"ADDR"                yaml:"addr"`
	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY"      yaml:"openaiAPIKey"`
	OpenAIBaseURL    string        `envconfig:"OPENAI_BASE_URL"     yaml:"openaiBaseURL"`
	OpenAIModel      string        `envconfig:"OPENAI_MODEL"        yaml:"openaiModel"`
	StructuredOutput bool          `envconfig:"STRUCTURED_OUTPUT"   yaml:"structuredOutput"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT"     yaml:"requestTimeout"`
	ModelFile        string        `envconfig:"MODEL_FILE"          yaml:"modelFile"`
	ModelBucket      string        `envconfig:"MODEL_BUCKET"        yaml:"modelBucket"`
	ModelKey         string        `envconfig:"MODEL_KEY"           yaml:"modelKey"`
	S3Endpoint       string        `envconfig:"AWS_ENDPOINT_URL_S3" yaml:"s3Endpoint"`
	S3Region         string        `envconfig:"AWS_REGION"          yaml:"s3Region"`
	TraceFile        string        `envconfig:"TRACE_FILE"          yaml:"traceFile"`
	TracePostgres    bool          `envconfig:"TRACE_POSTGRES"      yaml:"tracePostgres"`
}

// DefaultConfig is what the config file and then the environment are
// applied on top of.
func DefaultConfig() Config {
	return Config{
		Addr:             "127.0.0.1:8080",
		OpenAIModel:      halfmarathon.DefaultModel,
		StructuredOutput: true,
		RequestTimeout:   30 * time.Second,
		ModelBucket:      "half-marathon",
		ModelKey:         "model/new/best_marathon_model.json",
		S3Region:         "us-east-1",
	}
}

func LoadConfig() (*Config, error) {
	configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE")
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating config file: %w", err)
		}
		configFile = filepath.Join(home, ".config", appName+".yaml")
	}
	return loadConfig(configFile)
}

func loadConfig(configFile string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

// Validate checks the settings `serve` and `predict` need. An empty
// OpenAI key is allowed; users then supply their own.
func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.Addr == "" {
			return "addr", "ADDR"
		}
		if c.OpenAIModel == "" {
			return "openaiModel", "OPENAI_MODEL"
		}
		if c.ModelFile == "" {
			if c.ModelBucket == "" {
				return "modelBucket", "MODEL_BUCKET"
			}
			if c.ModelKey == "" {
				return "modelKey", "MODEL_KEY"
			}
		}
		return "", ""
	}(); y != "" {
		return fmt.Errorf(
			"missing required configuration: %s / %s_%s",
			y,
			envVarPrefix,
			e,
		)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf(
			"invalid configuration: requestTimeout / %s_REQUEST_TIMEOUT "+
				"must not be negative",
			envVarPrefix,
		)
	}
	return nil
}

func (c *Config) ObjectStore() (*objectstore.S3ObjectStore, error) {
	return objectstore.NewS3ObjectStore(c.S3Endpoint, c.S3Region)
}

// ModelHandle returns a handle that loads the model from `modelFile` if it
// is set and from object storage otherwise.
func (c *Config) ModelHandle() *model.Handle {
	if c.ModelFile != "" {
		path := c.ModelFile
		return model.NewHandle(func() (*model.Model, error) {
			return model.LoadFile(path)
		})
	}
	bucket, key := c.ModelBucket, c.ModelKey
	return model.NewHandle(func() (*model.Model, error) {
		store, err := c.ObjectStore()
		if err != nil {
			return nil, fmt.Errorf("loading model: %w", err)
		}
		return model.LoadObject(store, bucket, key)
	})
}

// Recorder returns the configured extraction recorders and a function to
// release them.
func (c *Config) Recorder() (halfmarathon.ExtractionRecorder, func() error, error) {
	var (
		recorders halfmarathon.MultiExtractionRecorder
		closers   []func() error
	)
	if c.TraceFile != "" {
		recorders = append(
			recorders,
			halfmarathon.NewFileExtractionRecorder(c.TraceFile),
		)
	}
	if c.TracePostgres {
		store, err := pgextractionstore.OpenEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("opening extraction store: %w", err)
		}
		if err := store.EnsureTable(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("opening extraction store: %w", err)
		}
		recorders = append(recorders, store)
		closers = append(closers, store.Close)
	}

	closeAll := func() error {
		var errs []error
		for _, closer := range closers {
			errs = append(errs, closer())
		}
		return errors.Join(errs...)
	}

	switch len(recorders) {
	case 0:
		return halfmarathon.NullExtractionRecorder{}, closeAll, nil
	case 1:
		return recorders[0], closeAll, nil
	default:
		return recorders, closeAll, nil
	}
}

func (c *Config) Extractor(
	recorder halfmarathon.ExtractionRecorder,
) *halfmarathon.OpenAIExtractor {
	return halfmarathon.NewOpenAIExtractor(
		halfmarathon.WithModel(c.OpenAIModel),
		halfmarathon.WithStructuredOutput(c.StructuredOutput),
		halfmarathon.WithBaseURL(c.OpenAIBaseURL),
		halfmarathon.WithRequestTimeout(c.RequestTimeout),
		halfmarathon.WithRecorder(recorder),
	)
}

func (c *Config) Pipeline(
	recorder halfmarathon.ExtractionRecorder,
	models *model.Handle,
) *halfmarathon.Pipeline {
	return &halfmarathon.Pipeline{
		Extractor:  c.Extractor(recorder),
		Predictors: models,
		Credential: c.OpenAIAPIKey,
	}
}

// Run serves the web form until the listener fails.
func (c *Config) Run() error {
	if err := c.Validate(); err != nil {
		return err
	}

	recorder, closeRecorder, err := c.Recorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	models := c.ModelHandle()
	if _, err := models.Model(); err != nil {
		// keep serving; predictions report the failure and /healthz shows
		// the model as not loaded
		slog.Error("loading model", "err", err.Error())
	} else {
		slog.Info("loaded model", "file", c.ModelFile, "bucket", c.ModelBucket, "key", c.ModelKey)
	}

	webServer := halfmarathon.WebServer{
		Pipeline: c.Pipeline(recorder, models),
		Models:   models,
		Timeout:  c.RequestTimeout,
		Logger:   slog.Default(),
	}

	slog.Info(
		"listening",
		"addr", c.Addr,
		"serverCredential", c.OpenAIAPIKey != "",
	)
	if err := http.ListenAndServe(
		c.Addr,
		pz.Register(pz.JSONLog(os.Stderr), webServer.Routes()...),
	); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
