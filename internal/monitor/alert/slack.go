package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/olekukonko/tablewriter"
	"github.com/slack-go/slack"
)

// Notifier posts a titled table. The first row is the table header.
type Notifier interface {
	Notify(ctx context.Context, header string, rows [][]string) error
}

type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string, client *http.Client) (*SlackNotifier, error) {
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackNotifier{webhookURL: webhookURL, client: client}, nil
}

func (n *SlackNotifier) Notify(ctx context.Context, header string, rows [][]string) error {
	msg := TableMessage(header, rows)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}

// TableMessage renders rows as a monospace table under a header block. The plain text
// fallback carries the header only.
func TableMessage(header string, rows [][]string) *slack.WebhookMessage {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, true, false)),
	}
	if len(rows) > 0 {
		blocks = append(blocks, &slack.SectionBlock{
			Type: slack.MBTSection,
			Text: slack.NewTextBlockObject(slack.MarkdownType, "```\n"+RenderTable(rows)+"```", false, false),
		})
	}
	return &slack.WebhookMessage{
		Text:   header,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func RenderTable(rows [][]string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeader(rows[0])
	table.AppendBulk(rows[1:])
	table.Render()
	return buf.String()
}
