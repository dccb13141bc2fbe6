package halfmarathon

import (
	"fmt"
	"math"

	"github.com/weberc2/halfmarathon/pkg/model"
)

// column names the model was trained with
const (
	ColumnAge     = "Wiek"
	ColumnGender  = "Płeć"
	ColumnTime5km = "5 km Czas"
)

// ModelInput is what gets shown to the user as the data passed to the
// model. The 5 km time is in seconds because that's what the model was
// trained on.
type ModelInput struct {
	Age            int    `json:"Wiek"`
	Gender         Gender `json:"Płeć"`
	Time5kmSeconds int    `json:"Czas_5km_sekundy"`
}

func NewModelInput(r *NormalizedRunner) ModelInput {
	return ModelInput{
		Age:            r.Age,
		Gender:         r.Gender,
		Time5kmSeconds: r.Time5kmSeconds,
	}
}

// Frame is the single-row table handed to the predictor.
func (in *ModelInput) Frame() model.Frame {
	return model.Frame{{
		ColumnAge:     in.Age,
		ColumnGender:  string(in.Gender),
		ColumnTime5km: float64(in.Time5kmSeconds),
	}}
}

// PredictSeconds runs the predictor on one runner and returns the
// predicted half-marathon time in seconds.
func PredictSeconds(p model.Predictor, in *ModelInput) (float64, error) {
	out, err := p.Predict(in.Frame())
	if err != nil {
		return 0, errPrediction(fmt.Errorf("predicting: %w", err))
	}
	if len(out) < 1 {
		return 0, errPrediction(fmt.Errorf("predicting: predictor returned no rows"))
	}

	seconds := out[0]
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, errPrediction(fmt.Errorf(
			"predicting: predictor returned invalid duration `%v`",
			seconds,
		))
	}
	return seconds, nil
}
