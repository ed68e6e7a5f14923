package application_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/applytrack/internal/instrumentation"
	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/tools/batch"
	"github.com/teemow/applytrack/internal/tools/common"
	"github.com/teemow/applytrack/internal/tracker"
)

// Workflows is the part of tracker.Service the tools call.
type Workflows interface {
	SendApplication(ctx context.Context, owner string, req tracker.SendRequest) (*tracker.SendResult, error)
	SyncInbox(ctx context.Context, owner string) (*tracker.SyncResult, error)
	ListAccounts(ctx context.Context, owner string) ([]model.LinkedAccount, error)
}

// Deps are the collaborators of the tools.
type Deps struct {
	Workflows Workflows
	Owners    common.OwnerResolver
	Metrics   *instrumentation.Metrics
}

// RegisterApplicationTools registers the applytrack tools with s. With
// readOnly set, applications_send is not offered.
func RegisterApplicationTools(s *mcpserver.MCPServer, deps Deps, readOnly bool) error {
	if deps.Workflows == nil {
		return fmt.Errorf("application tools need the workflows")
	}

	if !readOnly {
		sendTool := mcp.NewTool("applications_send",
			mcp.WithDescription("Email the resume for one or more jobs from the user's linked Gmail account and record each application"),
			mcp.WithString("jobIds",
				mcp.Required(),
				mcp.Description("Job ID (string) or array of job IDs to apply to"),
			),
			mcp.WithString("resumeId",
				mcp.Required(),
				mcp.Description("Resume to attach as PDF"),
			),
			mcp.WithString("senderAccountId",
				mcp.Description("Linked account to send from (default: the first linked account)"),
			),
			mcp.WithString("subject",
				mcp.Description("Subject line (default: 'Application for <title> at <company>')"),
			),
			mcp.WithString("body",
				mcp.Description("HTML body (default: a short cover note)"),
			),
			mcp.WithString("toEmail",
				mcp.Description("Recipient (default: the job's contact email)"),
			),
		)
		s.AddTool(sendTool, common.InstrumentedToolHandler("applications_send", deps.Metrics,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleSend(ctx, request, deps)
			}))
	}

	syncTool := mcp.NewTool("inbox_sync",
		mcp.WithDescription("Read recent mail of every linked account, match it to sent applications and update their status"),
	)
	s.AddTool(syncTool, common.InstrumentedToolHandler("inbox_sync", deps.Metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSync(ctx, request, deps)
		}))

	accountsTool := mcp.NewTool("accounts_list",
		mcp.WithDescription("List the Gmail accounts the user has linked"),
	)
	s.AddTool(accountsTool, common.InstrumentedToolHandler("accounts_list", deps.Metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAccounts(ctx, request, deps)
		}))

	return nil
}

const noOwnerMessage = "No user is associated with this session. Start the server with --owner or authenticate with a bearer token."

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func handleSend(ctx context.Context, request mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	owner := deps.Owners.Owner(ctx)
	if owner == "" {
		return mcp.NewToolResultError(noOwnerMessage), nil
	}

	args := request.GetArguments()
	jobIDs, err := batch.ParseStringOrArray(args["jobIds"], "jobIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resumeID := stringArg(args, "resumeId")
	if resumeID == "" {
		return mcp.NewToolResultError("'resumeId' field is required"), nil
	}

	template := tracker.SendRequest{
		ResumeID:        resumeID,
		SenderAccountID: stringArg(args, "senderAccountId"),
		Subject:         stringArg(args, "subject"),
		Body:            stringArg(args, "body"),
		ToEmail:         stringArg(args, "toEmail"),
	}

	results := batch.ProcessBatch(ctx, jobIDs, func(ctx context.Context, jobID string) (any, error) {
		req := template
		req.JobID = jobID
		return deps.Workflows.SendApplication(ctx, owner, req)
	})

	summary := batch.Summarize(results)
	out := mcp.NewToolResultText(batch.FormatResults(summary))
	// Nothing was sent: flag the whole call as failed.
	out.IsError = summary.Successful == 0
	return out, nil
}

func handleSync(ctx context.Context, _ mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	owner := deps.Owners.Owner(ctx)
	if owner == "" {
		return mcp.NewToolResultError(noOwnerMessage), nil
	}

	result, err := deps.Workflows.SyncInbox(ctx, owner)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Inbox sync failed: %v", err)), nil
	}
	return jsonResult(result)
}

func handleListAccounts(ctx context.Context, _ mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	owner := deps.Owners.Owner(ctx)
	if owner == "" {
		return mcp.NewToolResultError(noOwnerMessage), nil
	}

	accounts, err := deps.Workflows.ListAccounts(ctx, owner)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list accounts: %v", err)), nil
	}
	if len(accounts) == 0 {
		return mcp.NewToolResultText("No Gmail account is linked yet. Link one through /api/google/connect."), nil
	}
	return jsonResult(map[string]any{"accounts": accounts})
}
