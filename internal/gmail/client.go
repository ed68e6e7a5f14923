package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/logging"
	"github.com/teemow/applytrack/internal/model"
)

// SentApplicationsQuery selects sent mail that looks like an application.
const SentApplicationsQuery = "in:sent (apply OR application OR applied OR resume)"

// MaxPageSize is the largest page the Gmail list endpoint is asked for.
const MaxPageSize = 100

const (
	userID         = "me"
	defaultTimeout = 30 * time.Second
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	// Endpoint overrides the Gmail API base URL. It must end with a slash.
	Endpoint string
	// HTTPClient is the base client the bearer token is layered on.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
}

// Client wraps the Gmail Users service for a single mailbox.
type Client struct {
	svc     *gmail.UsersService
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// SentMessage identifies a delivered message.
type SentMessage struct {
	ID       string
	ThreadID string
}

// MessageRef is one hit of a list call.
type MessageRef struct {
	ID       string
	ThreadID string
}

// NewClient creates a Client that authenticates with accessToken.
func NewClient(ctx context.Context, accessToken string, opts Options) (*Client, error) {
	if accessToken == "" {
		return nil, errors.New("gmail: access token is required")
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	httpClient.Timeout = base.Timeout

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:     svc.Users,
		logger:  logging.WithOperation(opts.Logger, "gmail"),
		metrics: opts.Metrics,
	}, nil
}

// Send delivers an encoded envelope.
func (c *Client) Send(ctx context.Context, envelope string) (SentMessage, error) {
	var sent SentMessage
	err := c.call(ctx, instrumentation.OperationSend, func(ctx context.Context) error {
		msg, err := c.svc.Messages.Send(userID, &gmail.Message{Raw: envelope}).Context(ctx).Do()
		if err != nil {
			return err
		}
		sent = SentMessage{ID: msg.Id, ThreadID: msg.ThreadId}
		return nil
	})
	if err != nil {
		return SentMessage{}, err
	}
	c.logger.Debug("message sent", logging.MessageID(sent.ID))
	return sent, nil
}

// ListMessages returns up to limit message references matching query, newest
// first as Gmail orders them. Pages are requested at most MaxPageSize at a
// time and paging stops as soon as limit is reached.
func (c *Client) ListMessages(ctx context.Context, query string, limit int) ([]MessageRef, error) {
	refs := []MessageRef{}
	pageToken := ""

	for len(refs) < limit {
		pageSize := limit - len(refs)
		if pageSize > MaxPageSize {
			pageSize = MaxPageSize
		}

		var res *gmail.ListMessagesResponse
		err := c.call(ctx, instrumentation.OperationList, func(ctx context.Context) error {
			req := c.svc.Messages.List(userID).Q(query).MaxResults(int64(pageSize)).Context(ctx)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, m := range res.Messages {
			refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// GetMessage fetches message id in full format and normalizes it.
func (c *Client) GetMessage(ctx context.Context, id string) (*model.InboundMessage, error) {
	var msg *gmail.Message
	err := c.call(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		return err
	}, instrumentation.NewSpanAttributeBuilder().WithMessageID(id).Build()...)
	if err != nil {
		return nil, err
	}
	return Normalize(msg), nil
}

// call runs fn inside a client span, records the operation metric and
// converts the error.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, operation, attrs...)

	err := toTransportError("gmail."+operation, fn(ctx))

	instrumentation.EndSpan(span, err)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, operation, status, time.Since(start))
	return err
}

func toTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	te := &apperr.TransportError{Op: op, Err: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		te.Status = gerr.Code
		te.Body = gerr.Body
		if te.Body == "" {
			te.Body = gerr.Message
		}
	}
	return te
}
