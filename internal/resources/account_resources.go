package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/tools/common"
)

// AccountsURI is the resource listing the owner's linked mailboxes.
const AccountsURI = "applytrack://accounts"

// AccountLister lists linked accounts without their tokens.
type AccountLister interface {
	ListAccounts(ctx context.Context, owner string) ([]model.LinkedAccount, error)
}

// RegisterAccountResources registers the linked accounts resource.
func RegisterAccountResources(s *mcpserver.MCPServer, accounts AccountLister, owners common.OwnerResolver) error {
	if accounts == nil {
		return errors.New("account resources need an account lister")
	}

	resource := mcp.NewResource(
		AccountsURI,
		"Linked Gmail Accounts",
		mcp.WithResourceDescription("Gmail accounts linked by the current user, without tokens"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return readAccounts(ctx, request, accounts, owners)
	})
	return nil
}

func readAccounts(ctx context.Context, request mcp.ReadResourceRequest, accounts AccountLister, owners common.OwnerResolver) ([]mcp.ResourceContents, error) {
	owner := owners.Owner(ctx)
	if owner == "" {
		return nil, errors.New("no owner for this connection")
	}

	list, err := accounts.ListAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if list == nil {
		list = []model.LinkedAccount{}
	}

	data, err := json.MarshalIndent(map[string]any{"accounts": list}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal accounts: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
