package report

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"
)

//go:embed web/static/* web/templates/*
var embeddedFS embed.FS

const (
	templateBaseName        = "base"
	templateReportFile      = "web/templates/report.tmpl"
	templateReportName      = "report.tmpl"
	embeddedReportCSSPath   = "web/static/report.css"
	instagramProfileBaseURL = "https://www.instagram.com/"
	accountHandlePrefix     = "@"
	unknownLabelText        = "Unknown"
	displayTimestampLayout  = "2006-01-02 15:04 MST"
	embedReadErrorFormat    = "embed read %s: %w"
	signedDifferenceFormat  = "%+d"
	ratioFormat             = "%.2f"
	ratioUnavailableText    = "N/A"
	growthPositiveClassName = "growth-up"
	growthNegativeClassName = "growth-down"
)

func embeddedText(path string) (string, error) {
	content, err := fs.ReadFile(embeddedFS, path)
	if err != nil {
		return "", fmt.Errorf(embedReadErrorFormat, path, err)
	}
	return string(content), nil
}

func parseTemplates(fileSystem fs.FS, files ...string) (*template.Template, error) {
	templateWithFuncs := template.New(templateBaseName).Funcs(template.FuncMap{
		"timestamp": func(value time.Time) string {
			return value.UTC().Format(displayTimestampLayout)
		},
		"signed": func(value int) string {
			return fmt.Sprintf(signedDifferenceFormat, value)
		},
	})
	return templateWithFuncs.ParseFS(fileSystem, files...)
}

// resolveHandleLabel formats a handle with the @ prefix, or a placeholder for a blank handle.
func resolveHandleLabel(handle string) string {
	trimmedHandle := strings.TrimSpace(handle)
	if trimmedHandle == "" {
		return unknownLabelText
	}
	return accountHandlePrefix + trimmedHandle
}
