// Package ses implements a relay provider that sends messages through the
// AWS SES v2 API using per-origin access keys.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/welldanyogia/contact-mailer/internal/relay"
)

const providerName = "ses"

// SendEmailAPI is the subset of the SES v2 client the provider uses.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// ClientFactory builds an SES client for one pair of access keys.
type ClientFactory func(ctx context.Context, accessKeyID, secretAccessKey string) (SendEmailAPI, error)

// Provider sends messages with SES. The session identity is the verified
// sender address and the secret is "ACCESS_KEY_ID:SECRET_ACCESS_KEY".
type Provider struct {
	newClient ClientFactory
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[string]SendEmailAPI
}

// New creates an SES provider for region. Clients are created lazily, one
// per access key, and make a single attempt per request.
func New(region string, log *slog.Logger) (*Provider, error) {
	if region == "" {
		return nil, errors.New("ses relay: region is required")
	}
	factory := func(ctx context.Context, accessKeyID, secretAccessKey string) (SendEmailAPI, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithRetryMaxAttempts(1),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return sesv2.NewFromConfig(awsCfg), nil
	}
	return NewWithFactory(factory, log), nil
}

// NewWithFactory creates a provider that obtains clients from factory.
func NewWithFactory(factory ClientFactory, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		newClient: factory,
		logger:    log,
		clients:   make(map[string]SendEmailAPI),
	}
}

// NewWithClient creates a provider that sends every request through client.
// Session secrets are still parsed and validated.
func NewWithClient(client SendEmailAPI) *Provider {
	return NewWithFactory(func(context.Context, string, string) (SendEmailAPI, error) {
		return client, nil
	}, nil)
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// Send delivers env with a single SendEmail call.
func (p *Provider) Send(ctx context.Context, session relay.Session, env *relay.Envelope) (*relay.Receipt, error) {
	accessKeyID, secretAccessKey, ok := splitSecret(session.Secret)
	if !ok {
		return nil, &relay.Error{
			Kind:     relay.KindAuth,
			Code:     relay.CodeAuth,
			Provider: providerName,
			Err:      errors.New("transport secret must have the form ACCESS_KEY_ID:SECRET_ACCESS_KEY"),
		}
	}

	client, err := p.client(ctx, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, &relay.Error{Kind: relay.KindUnknown, Code: relay.CodeUnknown, Provider: providerName, Err: err}
	}

	out, err := client.SendEmail(ctx, buildInput(env))
	if err != nil {
		return nil, classify(err)
	}

	messageID := aws.ToString(out.MessageId)
	if messageID == "" {
		messageID = env.MessageID
	}

	return &relay.Receipt{
		MessageID: "<" + messageID + ">",
		Accepted:  []string{env.To},
		Rejected:  []string{},
		Envelope: relay.ReceiptEnvelope{
			From: env.From,
			To:   []string{env.To},
		},
		Response: "SES accepted message " + messageID,
		Provider: providerName,
	}, nil
}

func (p *Provider) client(ctx context.Context, accessKeyID, secretAccessKey string) (SendEmailAPI, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := accessKeyID + ":" + secretAccessKey
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := p.newClient(ctx, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	p.logger.DebugContext(ctx, "created SES client", slog.String("access_key_id", accessKeyID))
	return c, nil
}

func splitSecret(secret string) (accessKeyID, secretAccessKey string, ok bool) {
	accessKeyID, secretAccessKey, ok = strings.Cut(secret, ":")
	if !ok || accessKeyID == "" || secretAccessKey == "" {
		return "", "", false
	}
	return accessKeyID, secretAccessKey, true
}

func buildInput(env *relay.Envelope) *sesv2.SendEmailInput {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.From),
		Destination: &types.Destination{
			ToAddresses: []string{env.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(env.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(env.Body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
	if env.ReplyTo != "" {
		input.ReplyToAddresses = []string{env.ReplyTo}
	}
	return input
}

// authErrorCodes are the service error codes returned for bad or
// unauthorized access keys.
var authErrorCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
	"AccessDeniedException":       true,
	"IncompleteSignature":         true,
	"MissingAuthenticationToken":  true,
}

// classify maps SES API errors onto relay error kinds. Errors that never
// reached the service are classified as connection problems.
func classify(err error) *relay.Error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return relay.ClassifyNetwork(providerName, err)
	}

	e := &relay.Error{Kind: relay.KindUnknown, Code: relay.CodeProtocol, Provider: providerName, Err: err}
	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		e.Status = statusErr.HTTPStatusCode()
	}

	code := apiErr.ErrorCode()
	switch {
	case authErrorCodes[code]:
		e.Kind, e.Code = relay.KindAuth, relay.CodeAuth
	case code == "MessageRejected":
		e.Kind, e.Code = relay.KindRejected, relay.CodeMessage
	case code == "MailFromDomainNotVerifiedException" || code == "AccountSuspendedException" || code == "SendingPausedException":
		e.Kind, e.Code = relay.KindRejected, relay.CodeEnvelope
	}
	return e
}
