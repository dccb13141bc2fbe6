package halfmarathon

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/weberc2/halfmarathon/pkg/hms"
)

// ExtractedRunner holds what the language model pulled out of a
// description. Any field may be nil.
type ExtractedRunner struct {
	Age     *int    `json:"age"`
	Gender  *string `json:"gender"`
	Time5km *string `json:"time_5km"`
}

// UnmarshalJSON accepts an age written as a whole float, e.g. `34.0`.
func (x *ExtractedRunner) UnmarshalJSON(data []byte) error {
	var raw struct {
		Age     *float64 `json:"age"`
		Gender  *string  `json:"gender"`
		Time5km *string  `json:"time_5km"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	x.Age = nil
	if raw.Age != nil {
		if *raw.Age != math.Trunc(*raw.Age) || math.Abs(*raw.Age) > math.MaxInt32 {
			return fmt.Errorf("age `%v` is not a whole number of years", *raw.Age)
		}
		age := int(*raw.Age)
		x.Age = &age
	}
	x.Gender = raw.Gender
	x.Time5km = raw.Time5km
	return nil
}

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "K"
)

// NormalizedRunner is a complete, in-range set of predictor inputs. Only
// Normalize produces one.
type NormalizedRunner struct {
	Age            int    `json:"age"`
	Gender         Gender `json:"gender"`
	Time5kmSeconds int    `json:"time_5km_seconds"`
}

const (
	MinAge = 18
	MaxAge = 99
)

// field names as shown to the user, in reporting order
const (
	fieldAge     = "wiek"
	fieldGender  = "płeć"
	fieldTime5km = "czas 5 km"
)

// Normalize validates an extraction. Missing fields are reported together
// before any range check runs.
func Normalize(x *ExtractedRunner) (NormalizedRunner, error) {
	var seconds int
	timeOK := false
	if x.Time5km != nil {
		seconds, timeOK = hms.Parse(*x.Time5km)
	}

	var missing []string
	if x.Age == nil {
		missing = append(missing, fieldAge)
	}
	if x.Gender == nil || strings.TrimSpace(*x.Gender) == "" {
		missing = append(missing, fieldGender)
	}
	if !timeOK {
		missing = append(missing, fieldTime5km)
	}
	if len(missing) > 0 {
		return NormalizedRunner{}, errMissing(missing)
	}

	if *x.Age < MinAge || *x.Age > MaxAge {
		return NormalizedRunner{}, &Error{
			Kind:    KindDomainViolation,
			Message: msgAgeRange,
		}
	}

	gender, ok := ParseGender(*x.Gender)
	if !ok {
		return NormalizedRunner{}, &Error{
			Kind:    KindDomainViolation,
			Message: msgGender,
		}
	}

	return NormalizedRunner{
		Age:            *x.Age,
		Gender:         gender,
		Time5kmSeconds: seconds,
	}, nil
}

// ParseGender accepts the model's `M`/`K` plus common English and Polish
// spellings, case-insensitively.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man", "mężczyzna":
		return GenderMale, true
	case "k", "f", "female", "woman", "kobieta":
		return GenderFemale, true
	default:
		return "", false
	}
}
