package store

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConversation_Validate(t *testing.T) {
	empty := ""
	tests := []struct {
		name    string
		create  *CreateConversation
		wantErr bool
	}{
		{"valid", &CreateConversation{Participant: "leo", Message: "hello"}, false},
		{"blank participant", &CreateConversation{Participant: "  ", Message: "hello"}, true},
		{"empty message", &CreateConversation{Participant: "leo", Message: ""}, true},
		{"empty session id is dropped", &CreateConversation{Participant: "leo", Message: "hi", SessionID: &empty}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.create.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
		})
	}

	c := &CreateConversation{Participant: "leo", Message: "hi", SessionID: &empty}
	require.NoError(t, c.Validate())
	assert.Nil(t, c.SessionID)
}

func TestMatchKeyword(t *testing.T) {
	c := &Conversation{
		Participant: "Archie",
		Message:     "Browser startup bug",
		Metadata:    map[string]string{"source": "Dashboard", "priority": "high"},
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"browser", true},
		{"STARTUP", true},
		{"up bu", true},
		{"dashboard", true},
		{"archie", true},
		{"source", false}, // keys are not searched
		{"network", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKeyword(c, tt.query))
		})
	}

	unicode := &Conversation{Message: "ÉCOLE Straße"}
	assert.True(t, MatchKeyword(unicode, "école"))
	assert.True(t, MatchKeyword(unicode, "straße"))
}

func TestMetadataCodec(t *testing.T) {
	data, err := EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodeMetadata(map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, data)

	in := map[string]string{MetadataKeySource: "cli", MetadataKeyPriority: "high"}
	data, err = EncodeMetadata(in)
	require.NoError(t, err)
	out, err := DecodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeMetadata([]byte(`{"nested": {"a": 1}}`))
	require.Error(t, err, "only string values are accepted")
}

func TestParticipantsCodec(t *testing.T) {
	data, err := EncodeParticipants(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	list, err := DecodeParticipants(nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = DecodeParticipants([]byte(`["leo","archie"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"leo", "archie"}, list)
}

func TestCreateSession_Validate(t *testing.T) {
	c := &CreateSession{ID: "s1", Participants: []string{"leo", " archie ", "leo", "", "claude"}}
	require.NoError(t, c.Validate())
	assert.Equal(t, []string{"leo", "archie", "claude"}, c.Participants)

	require.Error(t, (&CreateSession{}).Validate())
}

func TestStorageWriteError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewStorageWriteError("create conversation", cause)

	assert.True(t, errors.Is(err, ErrStorageWrite))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "create conversation")

	var swe *StorageWriteError
	require.True(t, errors.As(err, &swe))
	assert.Equal(t, "create conversation", swe.Op)

	assert.NoError(t, NewStorageWriteError("noop", nil))
}

func TestWithSource(t *testing.T) {
	got := WithSource(nil, "cli")
	assert.Equal(t, map[string]string{MetadataKeySource: "cli"}, got)

	in := map[string]string{MetadataKeyPriority: "high"}
	got = WithSource(in, "api")
	assert.Equal(t, map[string]string{MetadataKeyPriority: "high", MetadataKeySource: "api"}, got)
	assert.NotContains(t, in, MetadataKeySource, "input is not modified")

	explicit := map[string]string{MetadataKeySource: "slack"}
	assert.Equal(t, explicit, WithSource(explicit, "api"))
}
