package web

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// QuickActions are offered while a chat is still empty.
var QuickActions = []string{
	"🛍️ Show me available products",
	"🏷️ What discount codes are available?",
	"👤 Show my user info",
	"🏪 Tell me about the merchant",
}

var capabilities = []string{
	"Browse products",
	"Create cart",
	"Apply discount codes",
	"Complete purchase",
}

type pageData struct {
	DefaultServerURL string
	QuickActions     []string
	Capabilities     []string
}

func renderPage(w io.Writer, defaultServerURL string) error {
	return pageTemplate.Execute(w, pageData{
		DefaultServerURL: defaultServerURL,
		QuickActions:     QuickActions,
		Capabilities:     capabilities,
	})
}
