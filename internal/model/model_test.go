package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Value(t *testing.T) {
	v, err := Metadata(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	v, err = Metadata{"email": "jane@example.com"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"jane@example.com"}`, v.(string))

	_, err = Metadata{"bad": make(chan int)}.Value()
	assert.ErrorContains(t, err, "encoding metadata")
}

func TestMetadata_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    Metadata
		wantErr bool
	}{
		{name: "nil", src: nil, want: Metadata{}},
		{name: "empty string", src: "", want: Metadata{}},
		{name: "string", src: `{"scope":"gmail.send"}`, want: Metadata{"scope": "gmail.send"}},
		{name: "bytes", src: []byte(`{"n":1}`), want: Metadata{"n": float64(1)}},
		{name: "malformed", src: "{", wantErr: true},
		{name: "unsupported type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Metadata
			err := m.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestMetadata_StringAndMerge(t *testing.T) {
	base := Metadata{"email": "jane@example.com", "n": 3}
	assert.Equal(t, "jane@example.com", base.String("email"))
	assert.Empty(t, base.String("n"), "non-string values read as empty")
	assert.Empty(t, Metadata(nil).String("email"))

	merged := base.Merge(Metadata{"email": "new@example.com", "scope": "x"})
	assert.Equal(t, Metadata{"email": "new@example.com", "n": 3, "scope": "x"}, merged)
	assert.Equal(t, "jane@example.com", base.String("email"), "merge leaves the receiver alone")
}

func TestCredentialRecord(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Minute)

	rec := &CredentialRecord{
		ID:           "cred-1",
		Owner:        "owner-1",
		Provider:     ProviderGoogle,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    &later,
		Raw:          Metadata{RawEmail: "jane@example.com", RawName: "Jane Doe"},
		CreatedAt:    now,
	}

	assert.True(t, rec.ValidAt(now))
	assert.False(t, rec.ValidAt(later), "expiry is exclusive")
	assert.True(t, rec.CanRefresh())

	rec.ExpiresAt = &earlier
	assert.False(t, rec.ValidAt(now))
	rec.ExpiresAt = nil
	assert.False(t, rec.ValidAt(now), "unknown expiry counts as expired")

	account := rec.Account()
	assert.Equal(t, LinkedAccount{
		ID:        "cred-1",
		Provider:  ProviderGoogle,
		Email:     "jane@example.com",
		Name:      "Jane Doe",
		CreatedAt: now,
	}, account)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "access")
	assert.NotContains(t, string(out), "refresh")
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusApplied, StatusInterviewing, StatusOffer, StatusRejected} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("applied").Valid())
	assert.False(t, Status("").Valid())
}
