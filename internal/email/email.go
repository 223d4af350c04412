// Package email sends account-offer mail through AWS SES v2. Delivery
// itself is an external collaborator; everything here is request shaping.
package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESClient is the slice of the SES v2 API the mailer uses.
type SESClient interface {
	SendEmail(ctx context.Context, input *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// OfferMailer sends single-use account offer links.
type OfferMailer struct {
	Client      SESClient
	FromAddress string
	BaseURL     string
}

// NewSESClient initializes the AWS SES v2 client.
func NewSESClient(ctx context.Context, region string) (*sesv2.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %v", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

// SendOffer emails a single-use account creation link to the given
// address.
func (m *OfferMailer) SendOffer(ctx context.Context, toAddress, token string) error {
	subject := "Your bug tracker account invitation"
	body := fmt.Sprintf(
		"An account has been offered for this email address.\n\n"+
			"To create it, visit:\n\n%s/confirm-account?t=%s\n\n"+
			"If you did not request an account, you can ignore this message.",
		m.BaseURL, token)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.FromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toAddress},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	}

	if _, err := m.Client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send offer email: %w", err)
	}
	return nil
}
