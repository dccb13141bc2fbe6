package halfmarathon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/weberc2/halfmarathon/pkg/logger"
)

// Extractor turns a free-text description into runner attributes. The
// credential is passed on every call rather than held by the extractor.
type Extractor interface {
	Extract(
		ctx context.Context,
		credential string,
		description string,
	) (ExtractedRunner, error)
}

const DefaultModel = "gpt-4o-mini"

type OpenAIExtractor struct {
	openAI        openai.Client
	clientOptions []option.RequestOption
	model         string
	structured    bool
	recorder      ExtractionRecorder
	now           func() time.Time
}

var _ Extractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(options ...func(*OpenAIExtractor)) *OpenAIExtractor {
	e := OpenAIExtractor{
		model:      DefaultModel,
		structured: true,
		recorder:   NullExtractionRecorder{},
		now:        time.Now,
	}
	for _, option := range options {
		option(&e)
	}
	e.openAI = openai.NewClient(
		append(
			[]option.RequestOption{option.WithMaxRetries(0)},
			e.clientOptions...,
		)...,
	)
	return &e
}

func WithModel(model string) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithStructuredOutput toggles the strict JSON-schema response format.
// Some OpenAI-compatible endpoints don't support it.
func WithStructuredOutput(structured bool) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) { e.structured = structured }
}

func WithRecorder(recorder ExtractionRecorder) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) { e.recorder = recorder }
}

func WithBaseURL(baseURL string) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) {
		if baseURL != "" {
			e.clientOptions = append(e.clientOptions, option.WithBaseURL(baseURL))
		}
	}
}

func WithHTTPClient(client *http.Client) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) {
		e.clientOptions = append(e.clientOptions, option.WithHTTPClient(client))
	}
}

func WithRequestTimeout(timeout time.Duration) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) {
		if timeout > 0 {
			e.clientOptions = append(
				e.clientOptions,
				option.WithRequestTimeout(timeout),
			)
		}
	}
}

func WithTimeFunc(now func() time.Time) func(*OpenAIExtractor) {
	return func(e *OpenAIExtractor) { e.now = now }
}

func (e *OpenAIExtractor) Extract(
	ctx context.Context,
	credential string,
	description string,
) (runner ExtractedRunner, err error) {
	prompt, err := UserPrompt(description)
	if err != nil {
		err = errMalformed(fmt.Errorf("extracting runner: %w", err))
		return
	}

	trace := ExtractionTrace{
		ID:          uuid.NewString(),
		Time:        e.now().UTC(),
		Description: description,
		Prompt:      prompt,
		Model:       e.model,
		Temperature: 0,
		Structured:  e.structured,
	}
	start := time.Now()
	defer func() {
		trace.DurationMS = time.Since(start).Milliseconds()
		if err != nil {
			trace.Error = err.Error()
		}
		// a timed-out request still gets its trace recorded
		if rerr := e.recorder.RecordExtraction(
			context.WithoutCancel(ctx),
			&trace,
		); rerr != nil {
			logger.Get(ctx).Warn(
				"extracting runner",
				"action", "recording extraction",
				"trace", trace.ID,
				"err", rerr.Error(),
			)
		}
	}()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	}
	if e.structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "runner",
					Description: openai.String("Dane biegacza wyciągnięte z opisu"),
					Schema:      runnerResponseFormat,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	completion, err := e.openAI.Chat.Completions.New(
		ctx,
		params,
		option.WithAPIKey(credential),
	)
	if err != nil {
		err = errUnavailable(fmt.Errorf("extracting runner: %w", err))
		return
	}
	if len(completion.Choices) < 1 {
		err = errMalformed(fmt.Errorf("extracting runner: completion has no choices"))
		return
	}

	trace.Response = completion.Choices[0].Message.Content
	logger.Get(ctx).Debug(
		"extracting runner",
		"trace", trace.ID,
		"completion", trace.Response,
	)

	var data string
	if data, err = isolateJSON(trace.Response); err != nil {
		err = errMalformed(fmt.Errorf("extracting runner: %w", err))
		return
	}
	trace.Extracted = json.RawMessage(data)

	if runner, err = ParseExtractedRunner([]byte(data)); err != nil {
		trace.Extracted = nil
		err = errMalformed(fmt.Errorf("extracting runner: %w", err))
		return
	}
	return
}

var errNoJSONObject = errors.New("no JSON object in response")

// isolateJSON returns the text from the first `{` to the last `}`
// inclusive, dropping any commentary or code fences around it.
func isolateJSON(response string) (string, error) {
	response = strings.TrimSpace(response)
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return "", errNoJSONObject
	}
	return response[start : end+1], nil
}

// ParseExtractedRunner validates and decodes the JSON object returned by
// the language model.
func ParseExtractedRunner(data []byte) (runner ExtractedRunner, err error) {
	if !json.Valid(data) {
		err = fmt.Errorf("parsing extracted runner: invalid json")
		return
	}
	if err = ValidateExtractedRunner(data); err != nil {
		err = fmt.Errorf("parsing extracted runner: %w", err)
		return
	}
	if err = json.Unmarshal(data, &runner); err != nil {
		err = fmt.Errorf("parsing extracted runner: %w", err)
	}
	return
}
