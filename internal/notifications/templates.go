package notifications

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message is the content of one notification email.
type Message struct {
	Subject     string
	Heading     string
	Lines       []string
	ActionURL   string
	ActionLabel string
}

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="fr">
<body style="font-family: Arial, sans-serif; color: #1f2933; max-width: 560px; margin: 0 auto;">
  <h2 style="color: #0b5fff;">{{.Heading}}</h2>
  {{range .Lines}}<p>{{.}}</p>
  {{end}}{{if .ActionURL}}<p><a href="{{.ActionURL}}" style="background: #0b5fff; color: #fff; padding: 10px 16px; border-radius: 4px; text-decoration: none;">{{.ActionLabel}}</a></p>
  {{end}}<p style="color: #7b8794; font-size: 12px;">ExtraBeam</p>
</body>
</html>
`))

// Render returns the HTML body of the message. Values are escaped.
func Render(m Message) (string, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, m); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// euros formats cents as a French amount, e.g. 1234,50 €.
func euros(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d €", sign, cents/100, cents%100)
}
