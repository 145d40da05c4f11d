// Package notify pushes best-effort staff notifications over SES email and
// an SNS topic. Delivery failures are logged, never propagated: no loan
// operation depends on a notification landing.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"loan-triage/internal/common/config"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
)

type emailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, opts ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	ses    emailSender
	sns    topicPublisher
	cfg    config.NotificationConfig
	logger logger.Logger
}

// New builds the notifier. When notifications are disabled in config the
// returned notifier swallows every call.
func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
	if !cfg.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	n.ses = ses.NewFromConfig(awsCfg)
	n.sns = sns.NewFromConfig(awsCfg)
	return n, nil
}

// AssignmentRequested tells the managers an officer wants an out-of-branch
// application.
func (n *Notifier) AssignmentRequested(ctx context.Context, req *models.AssignmentRequest, loan *models.LoanApplication) {
	subject := fmt.Sprintf("Assignment request #%d for application #%d", req.ID, loan.ID)
	body := fmt.Sprintf(
		"Officer #%d requested application #%d (%s %s, branch %s).\nReview it in the triage dashboard.",
		req.RequestedByID, loan.ID, loan.FirstName, loan.LastName, loan.Branch,
	)
	n.sendEmail(ctx, subject, body)
	n.publish(ctx, subject)
}

// ApplicationClosed announces a terminal transition on the SNS topic.
func (n *Notifier) ApplicationClosed(ctx context.Context, loan *models.LoanApplication) {
	n.publish(ctx, fmt.Sprintf("Application #%d closed as %s", loan.ID, loan.Status))
}

func (n *Notifier) sendEmail(ctx context.Context, subject, body string) {
	if n.ses == nil || n.cfg.ManagersEmail == "" || n.cfg.SenderEmail == "" {
		return
	}
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.cfg.SenderEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.cfg.ManagersEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Warn("email notification failed", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

func (n *Notifier) publish(ctx context.Context, message string) {
	if n.sns == nil || n.cfg.SNSTopicARN == "" {
		return
	}
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.cfg.SNSTopicARN),
		Message:  aws.String(message),
	})
	if err != nil {
		n.logger.Warn("topic notification failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
