package halfmarathon

import (
	"context"
	"fmt"
	"strings"

	"github.com/weberc2/halfmarathon/pkg/hms"
	"github.com/weberc2/halfmarathon/pkg/logger"
	"github.com/weberc2/halfmarathon/pkg/model"
)

type PredictorSource interface {
	Predictor() (model.Predictor, error)
}

// Pipeline runs extraction, normalization and prediction for one
// description.
type Pipeline struct {
	Extractor  Extractor
	Predictors PredictorSource

	// Credential is the server's inference-service credential. When empty,
	// every request must bring its own.
	Credential string
}

type Input struct {
	Description string `json:"description"`
	Credential  string `json:"apiKey,omitempty"`
}

type Prediction struct {
	Runner     NormalizedRunner `json:"runner"`
	ModelInput ModelInput       `json:"modelInput"`
	Seconds    float64          `json:"seconds"`
	Time       string           `json:"time"`
}

// RequiresCredential reports whether callers must supply a credential.
func (p *Pipeline) RequiresCredential() bool {
	return p.Credential == ""
}

// Run returns either a prediction or an *Error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Prediction, error) {
	l := logger.Get(ctx)

	if strings.TrimSpace(in.Description) == "" {
		return nil, ErrInputEmpty
	}

	credential := p.Credential
	if credential == "" {
		credential = strings.TrimSpace(in.Credential)
	}
	if credential == "" {
		return nil, ErrCredentialMissing
	}

	extracted, err := p.Extractor.Extract(ctx, credential, in.Description)
	if err != nil {
		l.Warn("predicting", "action", "extracting runner", "err", err.Error())
		return nil, AsError(err)
	}

	runner, err := Normalize(&extracted)
	if err != nil {
		l.Info("predicting", "action", "normalizing runner", "err", err.Error())
		return nil, err
	}

	predictor, err := p.Predictors.Predictor()
	if err != nil {
		l.Error("predicting", "action", "loading model", "err", err.Error())
		return nil, errPrediction(fmt.Errorf("loading model: %w", err))
	}

	input := NewModelInput(&runner)
	seconds, err := PredictSeconds(predictor, &input)
	if err != nil {
		l.Error("predicting", "action", "running model", "err", err.Error())
		return nil, err
	}

	formatted, err := hms.Format(seconds)
	if err != nil {
		return nil, errPrediction(err)
	}

	l.Info(
		"predicting",
		"age", runner.Age,
		"gender", runner.Gender,
		"time5kmSeconds", runner.Time5kmSeconds,
		"predictedSeconds", seconds,
	)
	return &Prediction{
		Runner:     runner,
		ModelInput: input,
		Seconds:    seconds,
		Time:       formatted,
	}, nil
}
