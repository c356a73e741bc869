package alerts

import (
	"bytes"
	"fmt"
	"text/template"

	"mercator-hq/spendcap/pkg/budget"
)

var (
	subjectTemplate = template.Must(template.New("subject").Parse(
		`[{{.Tier}}] Budget "{{.BudgetName}}" {{.Headline}}`))

	bodyTemplate = template.Must(template.New("body").Parse(`Budget: {{.BudgetName}} ({{.BudgetID}})
Account: {{.OwnerID}}
Scope: {{.Scope}}
Spend: ${{.SpendUSD}} of ${{.LimitUSD}} ({{.PercentUsed}}%) this {{.Period}} period
Action on breach: {{.Action}}
Resets: {{.ResetAt.Format "2006-01-02 15:04 MST"}}
`))
)

type renderData struct {
	TemplateData
	Tier     string
	Headline string
}

// Tier is the label a notification carries for a severity. Critical is
// tagged distinctly from warning.
func Tier(s budget.Severity) string {
	switch s {
	case budget.SeverityExceeded:
		return "EXCEEDED"
	case budget.SeverityCritical:
		return "CRITICAL"
	case budget.SeverityWarning:
		return "WARNING"
	case budget.SeverityRecovered:
		return "RECOVERED"
	default:
		return "INFO"
	}
}

func headline(s budget.Severity) string {
	switch s {
	case budget.SeverityExceeded:
		return "has exceeded its limit"
	case budget.SeverityCritical:
		return "is above 90% of its limit"
	case budget.SeverityWarning:
		return "is above 75% of its limit"
	case budget.SeverityRecovered:
		return "is back under its alert threshold"
	default:
		return "status update"
	}
}

// Render produces the subject and plain-text body of a notification.
func Render(data TemplateData, severity budget.Severity) (subject, body string, err error) {
	rd := renderData{TemplateData: data, Tier: Tier(severity), Headline: headline(severity)}

	var buf bytes.Buffer
	if err := subjectTemplate.Execute(&buf, rd); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = buf.String()

	buf.Reset()
	if err := bodyTemplate.Execute(&buf, rd); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject, buf.String(), nil
}
