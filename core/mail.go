package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// EmailTemplates holds the parsed `<name>.txt` and `<name>.gohtml` email templates,
	// each one composed with `_base.txt` or `_base.gohtml`.
	EmailTemplates struct {
		text map[string]*texttmpl.Template
		html map[string]*htmltmpl.Template
		ctx  ContextData
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates parses every template found in `dir` of fsys.
func ParseEmailTemplates(fsys fs.FS, dir string, conf *Config) (*EmailTemplates, error) {
	tmpls := &EmailTemplates{
		text: make(map[string]*texttmpl.Template),
		html: make(map[string]*htmltmpl.Template),
		ctx:  ContextData{AppName: conf.AppName, FrontendBaseURL: conf.FrontendBaseURL},
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading templates dir")
	}
	for _, entry := range entries {
		fname := entry.Name()
		ext := path.Ext(fname)
		if entry.IsDir() || strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFS(fsys, path.Join(dir, "_base.txt"), path.Join(dir, fname))
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			tmpls.text[name] = tmpl.Option("missingkey=error")
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFS(fsys, path.Join(dir, "_base.gohtml"), path.Join(dir, fname))
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			tmpls.html[name] = tmpl.Option("missingkey=error")
		}
	}
	return tmpls, nil
}

// Render fills msg.TextContent and msg.HTMLContent.
func (t *EmailTemplates) Render(msg *EmailMessage) error {
	if msg.BodyStr != "" {
		msg.TextContent = msg.BodyStr
	}
	if msg.TemplateName == "" || t == nil {
		return nil
	}

	data := t.ctx
	data.Data = msg.TemplateData

	if tmpl, ok := t.text[msg.TemplateName]; ok && msg.BodyStr == "" {
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", msg.TemplateName)
		}
		msg.TextContent = buff.String()
	}
	if tmpl, ok := t.html[msg.TemplateName]; ok {
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", msg.TemplateName)
		}
		msg.HTMLContent = buff.String()
	}
	return nil
}
