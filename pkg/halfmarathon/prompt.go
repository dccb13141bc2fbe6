package halfmarathon

import (
	"fmt"
	"strings"
	"text/template"
)

const systemPrompt = "Jesteś silnikiem ekstrakcji danych. Zwracasz wyłącznie poprawny JSON."

var userPromptTemplate = template.Must(template.New("user").Parse(`
Z tekstu wyciągnij dane biegacza i ZNORMALIZUJ je do postaci:

- age: liczba całkowita
- gender: 'M' albo 'K'
- time_5km: ZAWSZE w formacie HH:MM:SS (np. 00:27:33)

Użytkownik może podać czas w dowolnej formie (np. "27:33", "27 minut", "0:27:33", "pół godziny").
Twoim zadaniem jest przeliczyć i zwrócić poprawne HH:MM:SS.

Tekst:
{{ .Description }}

Zwróć wyłącznie JSON:
{"age":..., "gender":..., "time_5km":...}
Braki uzupełnij null.
`))

// UserPrompt interpolates the runner's description into the extraction
// request.
func UserPrompt(description string) (string, error) {
	var w strings.Builder
	if err := userPromptTemplate.Execute(&w, struct {
		Description string
	}{
		Description: description,
	}); err != nil {
		return "", fmt.Errorf("rendering user prompt: %w", err)
	}
	return w.String(), nil
}
