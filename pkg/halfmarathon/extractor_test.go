package halfmarathon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const testCredential = "sk-test-credential"

// openAIFake stands in for the chat completions endpoint and remembers the
// last request it received.
type openAIFake struct {
	lock          sync.Mutex
	status        int
	content       string
	path          string
	authorization string
	body          map[string]any
}

func (fake *openAIFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	fake.lock.Lock()
	fake.path = r.URL.Path
	fake.authorization = r.Header.Get("Authorization")
	fake.body = body
	status, content := fake.status, fake.content
	fake.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultModel,
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		}},
	})
}

func (fake *openAIFake) request() (path, authorization string, body map[string]any) {
	fake.lock.Lock()
	defer fake.lock.Unlock()
	return fake.path, fake.authorization, fake.body
}

func testExtractor(
	srv *httptest.Server,
	options ...func(*OpenAIExtractor),
) *OpenAIExtractor {
	return NewOpenAIExtractor(append(
		[]func(*OpenAIExtractor){
			WithBaseURL(srv.URL + "/"),
			WithHTTPClient(srv.Client()),
		},
		options...,
	)...)
}

func TestOpenAIExtractor_Extract(t *testing.T) {
	for _, testCase := range []struct {
		name       string
		status     int
		content    string
		wanted     ExtractedRunner
		wantedKind *Kind

		// when set, the extraction is also normalized and must fail with
		// this message
		wantedMessage string
	}{
		{
			name:    "plain json",
			content: `{"age":34,"gender":"M","time_5km":"00:24:15"}`,
			wanted:  runner(ptr(34), ptr("M"), ptr("00:24:15")),
		},
		{
			name:    "commentary around json",
			content: `Here is the result: {"age":30,"gender":"K","time_5km":"00:25:00"} Thanks!`,
			wanted:  runner(ptr(30), ptr("K"), ptr("00:25:00")),
		},
		{
			name:    "code fence",
			content: "```json\n{\"age\":41,\"gender\":\"M\",\"time_5km\":\"00:30:00\"}\n```",
			wanted:  runner(ptr(41), ptr("M"), ptr("00:30:00")),
		},
		{
			name:    "nulls",
			content: `{"age":null,"gender":null,"time_5km":null}`,
			wanted:  runner(nil, nil, nil),
		},
		{
			name:       "no braces",
			content:    "Nie potrafię odpowiedzieć.",
			wantedKind: kind(KindExtractionMalformed),
		},
		{
			name:       "invalid json",
			content:    `{"age": 30, "gender": }`,
			wantedKind: kind(KindExtractionMalformed),
		},
		{
			name:       "wrong type",
			content:    `{"age":"thirty","gender":"M","time_5km":"00:25:00"}`,
			wantedKind: kind(KindExtractionMalformed),
		},
		{
			name:          "absent keys",
			content:       `{"age":30}`,
			wanted:        runner(ptr(30), nil, nil),
			wantedMessage: "Brakuje danych: płeć, czas 5 km",
		},
		{
			name:          "absent age",
			content:       `{"gender":"M","time_5km":"00:25:00"}`,
			wanted:        runner(nil, ptr("M"), ptr("00:25:00")),
			wantedMessage: "Brakuje danych: wiek",
		},
		{
			name:    "whole float age",
			content: `{"age":34.0,"gender":"M","time_5km":"00:25:00"}`,
			wanted:  runner(ptr(34), ptr("M"), ptr("00:25:00")),
		},
		{
			name:       "fractional age",
			content:    `{"age":34.5,"gender":"M","time_5km":"00:25:00"}`,
			wantedKind: kind(KindExtractionMalformed),
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			wantedKind: kind(KindInferenceUnavailable),
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			wantedKind: kind(KindInferenceUnavailable),
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			fake := openAIFake{status: testCase.status, content: testCase.content}
			srv := httptest.NewServer(&fake)
			defer srv.Close()

			found, err := testExtractor(srv).Extract(
				context.Background(),
				testCredential,
				"Jestem mężczyzną, 34 lata, 5km w 24:15",
			)
			if testCase.wantedKind != nil {
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
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := compareExtracted(testCase.wanted, found); err != nil {
				t.Fatal(err)
			}
			if testCase.wantedMessage == "" {
				return
			}
			_, err = Normalize(&found)
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("Normalize(): wanted `*Error`; found `%v`", err)
			}
			if e.Message != testCase.wantedMessage {
				t.Fatalf(
					"Normalize(): wanted `%s`; found `%s`",
					testCase.wantedMessage,
					e.Message,
				)
			}
		})
	}
}

func TestOpenAIExtractor_RecordsAfterCancel(t *testing.T) {
	fake := openAIFake{content: `{"age":34,"gender":"M","time_5km":"00:24:15"}`}
	srv := httptest.NewServer(&fake)
	defer srv.Close()

	var recorder contextRecorderFake
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testExtractor(srv, WithRecorder(&recorder)).Extract(
		ctx,
		testCredential,
		"opis",
	)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindInferenceUnavailable {
		t.Fatalf("wanted `%s`; found `%v`", KindInferenceUnavailable, err)
	}
	if len(recorder.errs) != 1 {
		t.Fatalf("len(traces): wanted `1`; found `%d`", len(recorder.errs))
	}
	if recorder.errs[0] != nil {
		t.Fatalf("recording context: wanted `<nil>` error; found `%v`", recorder.errs[0])
	}
}

// contextRecorderFake remembers the state of the context each trace was
// recorded with.
type contextRecorderFake struct {
	errs []error
}

func (fake *contextRecorderFake) RecordExtraction(
	ctx context.Context,
	trace *ExtractionTrace,
) error {
	fake.errs = append(fake.errs, ctx.Err())
	return nil
}

func TestOpenAIExtractor_Request(t *testing.T) {
	for _, testCase := range []struct {
		name             string
		structured       bool
		wantedJSONSchema bool
	}{
		{name: "structured", structured: true, wantedJSONSchema: true},
		{name: "unstructured", structured: false, wantedJSONSchema: false},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			fake := openAIFake{content: `{"age":34,"gender":"M","time_5km":"00:24:15"}`}
			srv := httptest.NewServer(&fake)
			defer srv.Close()

			if _, err := testExtractor(
				srv,
				WithStructuredOutput(testCase.structured),
			).Extract(
				context.Background(),
				testCredential,
				"biegam 5 km w 24:15",
			); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			path, authorization, body := fake.request()
			if path != "/chat/completions" {
				t.Fatalf("path: wanted `/chat/completions`; found `%s`", path)
			}
			if wanted := "Bearer " + testCredential; authorization != wanted {
				t.Fatalf(
					"Authorization: wanted `%s`; found `%s`",
					wanted,
					authorization,
				)
			}
			if body["model"] != DefaultModel {
				t.Fatalf("model: wanted `%s`; found `%v`", DefaultModel, body["model"])
			}

			messages, _ := body["messages"].([]any)
			if len(messages) != 2 {
				t.Fatalf("len(messages): wanted `2`; found `%d`", len(messages))
			}
			system, _ := messages[0].(map[string]any)
			if system["role"] != "system" || system["content"] != systemPrompt {
				t.Fatalf("messages[0]: found `%v`", system)
			}
			user, _ := messages[1].(map[string]any)
			content, _ := user["content"].(string)
			if user["role"] != "user" ||
				!strings.Contains(content, "biegam 5 km w 24:15") {
				t.Fatalf("messages[1]: found `%v`", user)
			}

			format, _ := body["response_format"].(map[string]any)
			if found := format["type"] == "json_schema"; found != testCase.wantedJSONSchema {
				t.Fatalf(
					"response_format json_schema: wanted `%t`; found `%t` (%v)",
					testCase.wantedJSONSchema,
					found,
					format,
				)
			}
		})
	}
}

func TestOpenAIExtractor_Recorder(t *testing.T) {
	fake := openAIFake{content: `Wynik: {"age":34,"gender":"M","time_5km":"00:24:15"}`}
	srv := httptest.NewServer(&fake)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "traces.jsonl")
	now := time.Date(2024, 4, 14, 9, 0, 0, 0, time.UTC)
	extractor := testExtractor(
		srv,
		WithRecorder(NewFileExtractionRecorder(path)),
		WithTimeFunc(func() time.Time { return now }),
	)

	for _, description := range []string{"pierwszy opis", "drugi opis"} {
		if _, err := extractor.Extract(
			context.Background(),
			testCredential,
			description,
		); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading traces: %v", err)
	}
	if bytes.Contains(data, []byte(testCredential)) {
		t.Fatalf("traces contain the credential:\n%s", data)
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("len(traces): wanted `2`; found `%d`", len(lines))
	}

	var trace ExtractionTrace
	if err := json.Unmarshal(lines[1], &trace); err != nil {
		t.Fatalf("unmarshaling trace: %v", err)
	}
	if trace.Description != "drugi opis" {
		t.Fatalf(
			"ExtractionTrace.Description: wanted `drugi opis`; found `%s`",
			trace.Description,
		)
	}
	if !trace.Time.Equal(now) {
		t.Fatalf("ExtractionTrace.Time: wanted `%s`; found `%s`", now, trace.Time)
	}
	if trace.ID == "" {
		t.Fatal("ExtractionTrace.ID: wanted non-empty")
	}
	if wanted := `{"age":34,"gender":"M","time_5km":"00:24:15"}`; string(trace.Extracted) != wanted {
		t.Fatalf(
			"ExtractionTrace.Extracted: wanted `%s`; found `%s`",
			wanted,
			trace.Extracted,
		)
	}
	if trace.Error != "" {
		t.Fatalf("ExtractionTrace.Error: wanted ``; found `%s`", trace.Error)
	}
}

func TestOpenAIExtractor_RecorderFailure(t *testing.T) {
	fake := openAIFake{content: `{"age":34,"gender":"M","time_5km":"00:24:15"}`}
	srv := httptest.NewServer(&fake)
	defer srv.Close()

	// a directory can't be opened for appending
	extractor := testExtractor(
		srv,
		WithRecorder(NewFileExtractionRecorder(t.TempDir())),
	)
	found, err := extractor.Extract(
		context.Background(),
		testCredential,
		"opis",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := compareExtracted(
		runner(ptr(34), ptr("M"), ptr("00:24:15")),
		found,
	); err != nil {
		t.Fatal(err)
	}
}

func TestIsolateJSON(t *testing.T) {
	for _, testCase := range []struct {
		name      string
		input     string
		wanted    string
		wantedErr error
	}{
		{
			name:   "bare object",
			input:  `{"age":30}`,
			wanted: `{"age":30}`,
		},
		{
			name:   "commentary",
			input:  `Here is the result: {"age":30,"gender":"M"} Thanks!`,
			wanted: `{"age":30,"gender":"M"}`,
		},
		{
			name:   "first open to last close",
			input:  `a {"x":{"y":1}} b }`,
			wanted: `{"x":{"y":1}} b }`,
		},
		{
			name:      "no braces",
			input:     "nothing here",
			wantedErr: errNoJSONObject,
		},
		{
			name:      "close before open",
			input:     "} {",
			wantedErr: errNoJSONObject,
		},
		{
			name:      "empty",
			input:     "",
			wantedErr: errNoJSONObject,
		},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			found, err := isolateJSON(testCase.input)
			if err != testCase.wantedErr {
				t.Fatalf("error: wanted `%v`; found `%v`", testCase.wantedErr, err)
			}
			if found != testCase.wanted {
				t.Fatalf("wanted `%s`; found `%s`", testCase.wanted, found)
			}
		})
	}
}

func compareExtracted(wanted, found ExtractedRunner) error {
	w, err := json.Marshal(wanted)
	if err != nil {
		return err
	}
	f, err := json.Marshal(found)
	if err != nil {
		return err
	}
	if !bytes.Equal(w, f) {
		return errors.New("ExtractedRunner: wanted `" + string(w) +
			"`; found `" + string(f) + "`")
	}
	return nil
}
