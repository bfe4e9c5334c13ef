// Package notify publishes import reports to operators: an email
// summary through Resend and a message on an SQS queue for downstream
// consumers. Both are optional and configured by environment; failures
// are logged and never affect the import outcome.
package notify

import (
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/orders"
)

// EmailNotifier sends import report summaries via Resend.
type EmailNotifier struct {
	client    *resend.Client
	fromEmail string
	toEmail   string
	logger    *zap.Logger
}

// NewEmailNotifier creates a notifier sending from fromEmail to toEmail.
func NewEmailNotifier(apiKey, fromEmail, toEmail string) *EmailNotifier {
	return &EmailNotifier{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		toEmail:   toEmail,
		logger:    logger.Log,
	}
}

// ReportImported emails a summary of the finished batch.
func (n *EmailNotifier) ReportImported(report *orders.ImportReport) {
	subject := fmt.Sprintf("Order import %s: %d accepted, %d rejected, %d duplicates",
		report.BatchID, report.Accepted, report.Rejected, report.Duplicates)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Batch %s finished at %s.</p>", report.BatchID,
		report.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "<p>Accepted: %d<br>Rejected: %d<br>Duplicates: %d</p>",
		report.Accepted, report.Rejected, report.Duplicates)
	if report.Rejected > 0 {
		b.WriteString("<p>Rejected rows:</p><ul>")
		for _, rec := range report.Records {
			switch rec.Status {
			case orders.StatusAccepted, orders.StatusDuplicate:
				continue
			}
			fmt.Fprintf(&b, "<li>row %d: %s (%s)</li>", rec.Row, rec.Status, rec.Reason)
		}
		b.WriteString("</ul>")
	}

	params := &resend.SendEmailRequest{
		From:    n.fromEmail,
		To:      []string{n.toEmail},
		Subject: subject,
		Html:    b.String(),
		Tags: []resend.Tag{
			{Name: "category", Value: "order_import"},
		},
	}
	if _, err := n.client.Emails.Send(params); err != nil {
		n.logger.Error("Failed to send import report email",
			zap.String("batch_id", report.BatchID.String()),
			zap.Error(err))
		return
	}
	n.logger.Info("Import report email sent",
		zap.String("batch_id", report.BatchID.String()),
		zap.String("to", n.toEmail))
}
