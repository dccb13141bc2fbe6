package halfmarathon

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	for _, testCase := range []struct {
		name          string
		input         ExtractedRunner
		wanted        NormalizedRunner
		wantedKind    *Kind
		wantedMissing []string
		wantedMessage string
	}{
		{
			name:   "complete",
			input:  runner(ptr(25), ptr("M"), ptr("00:25:00")),
			wanted: NormalizedRunner{Age: 25, Gender: GenderMale, Time5kmSeconds: 1500},
		},
		{
			name:          "missing age",
			input:         runner(nil, ptr("M"), ptr("00:25:00")),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"wiek"},
			wantedMessage: "Brakuje danych: wiek",
		},
		{
			name:          "missing gender",
			input:         runner(ptr(25), nil, ptr("00:25:00")),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"płeć"},
			wantedMessage: "Brakuje danych: płeć",
		},
		{
			name:          "blank gender",
			input:         runner(ptr(25), ptr("  "), ptr("00:25:00")),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"płeć"},
			wantedMessage: "Brakuje danych: płeć",
		},
		{
			name:          "missing time",
			input:         runner(ptr(25), ptr("K"), nil),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"czas 5 km"},
			wantedMessage: "Brakuje danych: czas 5 km",
		},
		{
			name:          "unparseable time counts as missing",
			input:         runner(ptr(25), ptr("K"), ptr("27:33")),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"czas 5 km"},
			wantedMessage: "Brakuje danych: czas 5 km",
		},
		{
			name:          "everything missing",
			input:         runner(nil, nil, nil),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"wiek", "płeć", "czas 5 km"},
			wantedMessage: "Brakuje danych: wiek, płeć, czas 5 km",
		},
		{
			name:          "missing fields are reported before age range",
			input:         runner(ptr(15), nil, ptr("00:20:00")),
			wantedKind:    kind(KindExtractionIncomplete),
			wantedMissing: []string{"płeć"},
			wantedMessage: "Brakuje danych: płeć",
		},
		{
			name:          "too young",
			input:         runner(ptr(15), ptr("K"), ptr("00:20:00")),
			wantedKind:    kind(KindDomainViolation),
			wantedMessage: "Wiek musi być między 18 a 99 lat.",
		},
		{
			name:          "too old",
			input:         runner(ptr(100), ptr("K"), ptr("00:20:00")),
			wantedKind:    kind(KindDomainViolation),
			wantedMessage: "Wiek musi być między 18 a 99 lat.",
		},
		{
			name:   "lower age bound",
			input:  runner(ptr(18), ptr("K"), ptr("00:20:00")),
			wanted: NormalizedRunner{Age: 18, Gender: GenderFemale, Time5kmSeconds: 1200},
		},
		{
			name:   "upper age bound",
			input:  runner(ptr(99), ptr("M"), ptr("00:40:00")),
			wanted: NormalizedRunner{Age: 99, Gender: GenderMale, Time5kmSeconds: 2400},
		},
		{
			name:   "gender is coerced",
			input:  runner(ptr(30), ptr("Kobieta"), ptr("00:27:33")),
			wanted: NormalizedRunner{Age: 30, Gender: GenderFemale, Time5kmSeconds: 1653},
		},
		{
			name:          "unknown gender",
			input:         runner(ptr(30), ptr("X"), ptr("00:27:33")),
			wantedKind:    kind(KindDomainViolation),
			wantedMessage: "Płeć musi być 'M' albo 'K'.",
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			found, err := Normalize(&testCase.input)
			if testCase.wantedKind == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if found != testCase.wanted {
					t.Fatalf("wanted `%+v`; found `%+v`", testCase.wanted, found)
				}
				return
			}

			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("wanted `*Error`; found `%v`", err)
			}
			if e.Kind != *testCase.wantedKind {
				t.Fatalf(
					"Error.Kind: wanted `%s`; found `%s`",
					*testCase.wantedKind,
					e.Kind,
				)
			}
			if e.Message != testCase.wantedMessage {
				t.Fatalf(
					"Error.Message: wanted `%s`; found `%s`",
					testCase.wantedMessage,
					e.Message,
				)
			}
			if !reflect.DeepEqual(e.Missing, testCase.wantedMissing) {
				t.Fatalf(
					"Error.Missing: wanted `%v`; found `%v`",
					testCase.wantedMissing,
					e.Missing,
				)
			}
		})
	}
}

func TestParseGender(t *testing.T) {
	for _, testCase := range []struct {
		input    string
		wanted   Gender
		wantedOK bool
	}{
		{"M", GenderMale, true},
		{"m", GenderMale, true},
		{" male ", GenderMale, true},
		{"Man", GenderMale, true},
		{"mężczyzna", GenderMale, true},
		{"K", GenderFemale, true},
		{"k", GenderFemale, true},
		{"F", GenderFemale, true},
		{"female", GenderFemale, true},
		{"WOMAN", GenderFemale, true},
		{"kobieta", GenderFemale, true},
		{"", "", false},
		{"x", "", false},
		{"other", "", false},
	} {
		t.Run(testCase.input, func(t *testing.T) {
			found, ok := ParseGender(testCase.input)
			if ok != testCase.wantedOK {
				t.Fatalf("ok: wanted `%t`; found `%t`", testCase.wantedOK, ok)
			}
			if found != testCase.wanted {
				t.Fatalf("wanted `%s`; found `%s`", testCase.wanted, found)
			}
		})
	}
}

func TestKind_Status(t *testing.T) {
	for _, testCase := range []struct {
		kind   Kind
		wanted int
	}{
		{KindInputEmpty, 422},
		{KindCredentialMissing, 401},
		{KindExtractionIncomplete, 422},
		{KindExtractionMalformed, 502},
		{KindInferenceUnavailable, 502},
		{KindDomainViolation, 422},
		{KindPredictionFailure, 500},
	} {
		t.Run(testCase.kind.String(), func(t *testing.T) {
			if found := testCase.kind.Status(); found != testCase.wanted {
				t.Fatalf("wanted `%d`; found `%d`", testCase.wanted, found)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := error(&Error{Kind: KindInputEmpty, Message: "other message"})
	if !errors.Is(err, ErrInputEmpty) {
		t.Fatal("wanted errors of the same kind to match")
	}
	if errors.Is(err, ErrCredentialMissing) {
		t.Fatal("wanted errors of different kinds not to match")
	}
}

func runner(age *int, gender *string, time5km *string) ExtractedRunner {
	return ExtractedRunner{Age: age, Gender: gender, Time5km: time5km}
}

func ptr[T any](v T) *T { return &v }

func kind(k Kind) *Kind { return &k }
