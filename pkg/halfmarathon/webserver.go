package halfmarathon

import (
	"context"
	"encoding/json"
	"fmt"
	html "html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	pz "github.com/weberc2/httpeasy"

	"github.com/weberc2/halfmarathon/pkg/logger"
)

// Read at most this much of a request body. A description is a few
// sentences.
const maxBodySize = 8 << 10

type ModelStatus interface {
	Loaded() bool
}

// WebServer serves the prediction form and its JSON counterpart.
type WebServer struct {
	Pipeline *Pipeline

	// Models reports whether the prediction model is ready. May be nil.
	Models ModelStatus

	// Timeout bounds each prediction, including the call to the inference
	// service. Zero means no timeout.
	Timeout time.Duration

	Logger *slog.Logger
}

func (ws *WebServer) Routes() []pz.Route {
	return []pz.Route{
		{Path: "/", Method: "GET", Handler: ws.FormPage},
		{Path: "/", Method: "POST", Handler: ws.FormHandler},
		{Path: "/api/predict", Method: "POST", Handler: ws.PredictHandler},
		{Path: "/healthz", Method: "GET", Handler: ws.Health},
	}
}

// formPage is both the template context and the response logging, so
// anything the page must not log is tagged `json:"-"`.
type formPage struct {
	RequiresCredential bool   `json:"-"`
	Description        string `json:"-"`
	Time               string `json:"time,omitempty"`
	ModelInput         string `json:"-"`
	ErrorMessage       string `json:"errorMessage,omitempty"`
	Kind               string `json:"kind,omitempty"`
	Error              string `json:"error,omitempty"`
	Request            string `json:"request,omitempty"`
}

func (ws *WebServer) FormPage(r pz.Request) pz.Response {
	page := formPage{RequiresCredential: ws.Pipeline.RequiresCredential()}
	return pz.Ok(pz.HTMLTemplate(predictForm, &page), &page)
}

func (ws *WebServer) FormHandler(r pz.Request) pz.Response {
	page := formPage{RequiresCredential: ws.Pipeline.RequiresCredential()}
	form, err := parseForm(r)
	if err != nil {
		page.ErrorMessage = "Nie udało się odczytać formularza."
		page.Error = err.Error()
		return pz.BadRequest(pz.HTMLTemplate(predictForm, &page), &page)
	}
	page.Description = form.Get("description")

	ctx, cancel := ws.context("form")
	defer cancel()
	page.Request = requestID(ctx)

	prediction, err := ws.Pipeline.Run(ctx, Input{
		Description: page.Description,
		Credential:  form.Get("apiKey"),
	})
	if err != nil {
		e := AsError(err)
		page.ErrorMessage = e.Message
		page.Kind = e.Kind.String()
		page.Error = e.Error()
		return pz.Response{
			Status: e.Kind.Status(),
			Data:   pz.HTMLTemplate(predictForm, &page),
		}.WithLogging(&page)
	}

	data, err := json.MarshalIndent(&prediction.ModelInput, "", "  ")
	if err != nil {
		return pz.InternalServerError(&logging{
			Message: "marshaling model input",
			Error:   err.Error(),
		})
	}
	page.Time = prediction.Time
	page.ModelInput = string(data)
	return pz.Ok(pz.HTMLTemplate(predictForm, &page), &page)
}

var predictForm = html.Must(html.New("").Parse(`<html>
<head>
	<meta charset="utf-8">
	<title>Predyktor biegu</title>
</head>
<body>
<h1>Predykcja czasu półmaratonu Wrocławskiego na podstawie czasu biegu na 5 km.</h1>
{{ if .ErrorMessage }}<p id="error-message">{{ .ErrorMessage }}</p>{{ end }}
{{ if .Time }}<p id="prediction">Przewidywany czas półmaratonu: <strong>{{ .Time }}</strong></p>
<h2>Dane wejściowe do modelu</h2>
<p>To są dane wyekstrahowane przez LLM i przekazane do modelu. Czas 5 km jest zapisany w sekundach, ponieważ w takiej postaci trenowany był model.</p>
<pre id="model-input">{{ .ModelInput }}</pre>{{ end }}
<form action="/" method="POST">
	{{ if .RequiresCredential }}<label for="apiKey">Klucz API OpenAI</label>
	<input type="password" id="apiKey" name="apiKey" autocomplete="off"><br><br>
	{{ end }}<label for="description">Opisz siebie (imię/płeć, wiek, czas na 5 km):</label><br>
	<textarea id="description" name="description" rows="6" cols="60">{{ .Description }}</textarea><br><br>
	<input type="submit" value="Oblicz przewidywany czas półmaratonu">
</form>
</body>
</html>`))

func (ws *WebServer) PredictHandler(r pz.Request) pz.Response {
	var in Input
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return pz.BadRequest(
			pz.String("reading request body"),
			&logging{Message: "reading request body", Error: err.Error()},
		)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return pz.BadRequest(
			pz.Stringf("parsing request body: %v", err),
			&logging{Message: "parsing request body", Error: err.Error()},
		)
	}

	ctx, cancel := ws.context("api")
	defer cancel()

	prediction, err := ws.Pipeline.Run(ctx, in)
	if err != nil {
		e := AsError(err)
		return pz.Response{
			Status: e.Kind.Status(),
			Data:   pz.JSON(e),
		}.WithLogging(&logging{
			Message: "predicting",
			Request: requestID(ctx),
			Kind:    e.Kind.String(),
			Error:   e.Error(),
		})
	}
	return pz.Ok(pz.JSON(prediction), &logging{
		Message: "predicting",
		Request: requestID(ctx),
		Time:    prediction.Time,
	})
}

type health struct {
	ModelLoaded bool `json:"modelLoaded"`
}

func (ws *WebServer) Health(r pz.Request) pz.Response {
	h := health{ModelLoaded: ws.Models != nil && ws.Models.Loaded()}
	if !h.ModelLoaded {
		return pz.Response{
			Status: http.StatusServiceUnavailable,
			Data:   pz.JSON(&h),
		}
	}
	return pz.Ok(pz.JSON(&h))
}

type logging struct {
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Time    string `json:"time,omitempty"`
	Error   string `json:"error,omitempty"`
}

type requestIDKeyType struct{}

var requestIDKey requestIDKeyType

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (ws *WebServer) context(route string) (context.Context, context.CancelFunc) {
	l := ws.Logger
	if l == nil {
		l = slog.Default()
	}
	id := uuid.NewString()
	ctx := context.WithValue(context.Background(), requestIDKey, id)
	ctx = logger.Set(ctx, l.With("route", route, "request", id))
	if ws.Timeout > 0 {
		return context.WithTimeout(ctx, ws.Timeout)
	}
	return context.WithCancel(ctx)
}

func parseForm(r pz.Request) (url.Values, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	form, err := url.ParseQuery(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}
	return form, nil
}
