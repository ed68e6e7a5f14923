package resources

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/applytrack/internal/model"
	"github.com/teemow/applytrack/internal/tools/common"
)

type fakeAccounts struct {
	owner    string
	accounts []model.LinkedAccount
	err      error
}

func (f *fakeAccounts) ListAccounts(_ context.Context, owner string) ([]model.LinkedAccount, error) {
	f.owner = owner
	return f.accounts, f.err
}

func readRequest() mcp.ReadResourceRequest {
	var req mcp.ReadResourceRequest
	req.Params.URI = AccountsURI
	return req
}

func TestReadAccounts(t *testing.T) {
	fake := &fakeAccounts{accounts: []model.LinkedAccount{
		{ID: "cred-1", Provider: model.ProviderGoogle, Email: "jane@example.com"},
	}}

	contents, err := readAccounts(context.Background(), readRequest(), fake, common.OwnerResolver{Default: "owner-1"})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "owner-1", fake.owner)

	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, AccountsURI, text.URI)
	assert.Equal(t, "application/json", text.MIMEType)

	var body struct {
		Accounts []model.LinkedAccount `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "jane@example.com", body.Accounts[0].Email)
	assert.NotContains(t, text.Text, "token")
}

func TestReadAccounts_Errors(t *testing.T) {
	_, err := readAccounts(context.Background(), readRequest(), &fakeAccounts{}, common.OwnerResolver{})
	assert.Error(t, err, "no owner")

	_, err = readAccounts(context.Background(), readRequest(), &fakeAccounts{err: errors.New("db down")}, common.OwnerResolver{Default: "owner-1"})
	assert.ErrorContains(t, err, "db down")
}

func TestReadAccounts_EmptyList(t *testing.T) {
	contents, err := readAccounts(context.Background(), readRequest(), &fakeAccounts{}, common.OwnerResolver{Default: "owner-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"accounts": []}`, contents[0].(*mcp.TextResourceContents).Text)
}
