// Package messages renders the message keys carried by batch events for
// people reading the command line output.
package messages

import (
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// KeyFailedFiles summarises the documents that could not be signed.
const KeyFailedFiles = "completion.failed_files"

var english = []*i18n.Message{
	{ID: "progress.signed", Other: "Signed file {{.index}} of {{.total}}"},
	{ID: "progress.archive", Other: "Processing archive {{.name}}"},
	{ID: "progress.archive_signed", Other: "Signed {{.processed}} of {{.total}} documents"},
	{ID: "completion.success", Other: "Signing finished, signed files are in {{.outputDir}}"},
	{ID: "completion.error", Other: "Signing failed: {{.error}}"},
	{
		ID:    KeyFailedFiles,
		One:   "{{.count}} file could not be signed: {{.files}}",
		Other: "{{.count}} files could not be signed: {{.files}}",
	},
}

var brazilianPortuguese = []*i18n.Message{
	{ID: "progress.signed", Other: "Arquivo {{.index}} de {{.total}} assinado"},
	{ID: "progress.archive", Other: "Processando o arquivo compactado {{.name}}"},
	{ID: "progress.archive_signed", Other: "{{.processed}} de {{.total}} documentos assinados"},
	{ID: "completion.success", Other: "Assinatura concluída, os arquivos assinados estão em {{.outputDir}}"},
	{ID: "completion.error", Other: "Falha na assinatura: {{.error}}"},
	{
		ID:    KeyFailedFiles,
		One:   "{{.count}} arquivo não pôde ser assinado: {{.files}}",
		Other: "{{.count}} arquivos não puderam ser assinados: {{.files}}",
	},
}

// Catalog renders messages in one locale. Unknown locales fall back to
// English.
type Catalog struct {
	localizer *i18n.Localizer
}

// New returns a catalog for locale, such as "en" or "pt-BR".
func New(locale string) *Catalog {
	bundle := i18n.NewBundle(language.English)
	bundle.MustAddMessages(language.English, english...)
	bundle.MustAddMessages(language.BrazilianPortuguese, brazilianPortuguese...)

	return &Catalog{localizer: i18n.NewLocalizer(bundle, locale)}
}

// Render returns the message for key filled with data. An unknown key is
// returned as is.
func (c *Catalog) Render(key string, data map[string]any) string {
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		return key
	}
	return msg
}

// RenderCount is Render for messages with plural forms; data["count"] is set
// to count.
func (c *Catalog) RenderCount(key string, count int, data map[string]any) string {
	values := map[string]any{"count": count}
	for k, v := range data {
		values[k] = v
	}

	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: values,
		PluralCount:  count,
	})
	if err != nil {
		return key
	}
	return msg
}
