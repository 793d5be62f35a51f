package service

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// templateData is what the configurable notification templates receive.
type templateData struct {
	CustomerName string
	Count        int
	Total        string
	NearestDue   string
}

func newTemplateData(name string, count int, total float64, nearestDue time.Time) templateData {
	return templateData{
		CustomerName: name,
		Count:        count,
		Total:        fmt.Sprintf("%.2f", total),
		NearestDue:   nearestDue.Format("02/01/2006"),
	}
}

func renderTemplate(name, text string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
