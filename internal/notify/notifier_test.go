package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-triage/internal/common/config"
	"loan-triage/internal/common/logger"
	"loan-triage/internal/models"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, input *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	return &ses.SendEmailOutput{}, f.err
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, input)
	return &sns.PublishOutput{}, f.err
}

func testNotifier(t *testing.T, sesC *fakeSES, snsC *fakeSNS) *Notifier {
	t.Helper()
	return &Notifier{
		ses: sesC,
		sns: snsC,
		cfg: config.NotificationConfig{
			Enabled:       true,
			SenderEmail:   "triage@corp.example",
			ManagersEmail: "managers@corp.example",
			SNSTopicARN:   "arn:aws:sns:eu-central-1:1:triage",
		},
		logger: logger.NewTestLogger(t),
	}
}

func TestAssignmentRequestedSendsBothChannels(t *testing.T) {
	sesC, snsC := &fakeSES{}, &fakeSNS{}
	n := testNotifier(t, sesC, snsC)

	n.AssignmentRequested(context.Background(),
		&models.AssignmentRequest{ID: 5, RequestedByID: 7},
		&models.LoanApplication{ID: 42, FirstName: "Nino", LastName: "Beridze", Branch: "Didube"})

	require.Len(t, sesC.inputs, 1)
	assert.Equal(t, "managers@corp.example", sesC.inputs[0].Destination.ToAddresses[0])
	assert.Contains(t, *sesC.inputs[0].Message.Subject.Data, "application #42")
	require.Len(t, snsC.inputs, 1)
}

func TestDeliveryFailuresAreSwallowed(t *testing.T) {
	sesC := &fakeSES{err: errors.New("throttled")}
	snsC := &fakeSNS{err: errors.New("denied")}
	n := testNotifier(t, sesC, snsC)

	n.AssignmentRequested(context.Background(),
		&models.AssignmentRequest{ID: 5},
		&models.LoanApplication{ID: 42})
	n.ApplicationClosed(context.Background(), &models.LoanApplication{ID: 42, Status: models.StatusApproved})
}

func TestDisabledNotifierIsInert(t *testing.T) {
	n, err := New(context.Background(), config.NotificationConfig{Enabled: false}, logger.NewTestLogger(t))
	require.NoError(t, err)

	// No clients are wired; nothing must panic.
	n.AssignmentRequested(context.Background(),
		&models.AssignmentRequest{ID: 5},
		&models.LoanApplication{ID: 42})
	n.ApplicationClosed(context.Background(), &models.LoanApplication{ID: 42})
}
