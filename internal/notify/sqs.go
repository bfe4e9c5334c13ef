package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/orders"
)

// QueueNotifier publishes import report summaries to an SQS queue so
// downstream systems (reconciliation, alerting) can react to finished
// batches.
type QueueNotifier struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewQueueNotifier loads the default AWS configuration and targets the
// given queue.
func NewQueueNotifier(ctx context.Context, queueURL string) (*QueueNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		logger:   logger.Log,
	}, nil
}

// importMessage is the queue payload; record-level detail stays in the
// API response, the queue only carries the batch summary.
type importMessage struct {
	BatchID    string    `json:"batch_id"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Duplicates int       `json:"duplicates"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReportImported publishes the batch summary.
func (n *QueueNotifier) ReportImported(report *orders.ImportReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := json.Marshal(importMessage{
		BatchID:    report.BatchID.String(),
		Accepted:   report.Accepted,
		Rejected:   report.Rejected,
		Duplicates: report.Duplicates,
		FinishedAt: report.FinishedAt,
	})
	if err != nil {
		n.logger.Error("Failed to marshal import report message", zap.Error(err))
		return
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		n.logger.Error("Failed to publish import report to queue",
			zap.String("batch_id", report.BatchID.String()),
			zap.Error(err))
		return
	}
	n.logger.Info("Import report published to queue",
		zap.String("batch_id", report.BatchID.String()))
}
