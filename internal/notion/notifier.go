// Package notion delivers reminders as rows in a Notion database.
package notion

import (
	"context"
	"fmt"
	"net/http"

	gnt "github.com/dstotijn/go-notion"

	"github.com/kalambet/applytrack/internal/reminder"
)

// Notifier creates one Notion page per delivered reminder. The target
// database needs a "Name" title property, "Company" and "Details" text
// properties, a "Type" select and a "Due" date.
type Notifier struct {
	api        *gnt.Client
	databaseID string
}

// New creates a Notifier. httpClient may be nil.
func New(token, databaseID string, httpClient *http.Client) *Notifier {
	var opts []gnt.ClientOption
	if httpClient != nil {
		opts = append(opts, gnt.WithHTTPClient(httpClient))
	}
	return &Notifier{
		api:        gnt.NewClient(token, opts...),
		databaseID: databaseID,
	}
}

// Prepare checks that the database is reachable.
func (n *Notifier) Prepare(ctx context.Context) error {
	_, err := n.api.QueryDatabase(ctx, n.databaseID, &gnt.DatabaseQuery{PageSize: 1})
	if err != nil {
		return fmt.Errorf("reaching notion database: %w", err)
	}
	return nil
}

// Notify adds a page describing email.
func (n *Notifier) Notify(ctx context.Context, email reminder.FollowUpEmail) error {
	props := pageProperties(email)
	_, err := n.api.CreatePage(ctx, gnt.CreatePageParams{
		ParentType:             gnt.ParentTypeDatabase,
		ParentID:               n.databaseID,
		DatabasePageProperties: &props,
	})
	if err != nil {
		return fmt.Errorf("creating notion page for %s: %w", email.ID, err)
	}
	return nil
}

func richText(s string) []gnt.RichText {
	if s == "" {
		return nil
	}
	return []gnt.RichText{{Text: &gnt.Text{Content: s}}}
}

func pageProperties(email reminder.FollowUpEmail) gnt.DatabasePageProperties {
	props := gnt.DatabasePageProperties{
		"Name": gnt.DatabasePageProperty{Title: richText(email.Subject)},
		"Type": gnt.DatabasePageProperty{Select: &gnt.SelectOptions{Name: string(email.EmailType)}},
		"Due": gnt.DatabasePageProperty{Date: &gnt.Date{
			Start: gnt.NewDateTime(email.TriggerDate, true),
		}},
	}
	if email.CompanyName != "" {
		props["Company"] = gnt.DatabasePageProperty{RichText: richText(email.CompanyName)}
	}
	if email.Body != "" {
		props["Details"] = gnt.DatabasePageProperty{RichText: richText(email.Body)}
	}
	return props
}
