package entities

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"ambiguous", &AmbiguousMatchError{RawName: "jak"}, ErrAmbiguousMatch},
		{"unresolved", &UnresolvedIdentityError{RawName: "ghost", Source: SourceChat}, ErrUnresolvedIdentity},
		{"conflicting alias", &ConflictingAliasError{Key: "jake", Source: SourceStats, OwnerID: 1, RequestedID: 2}, ErrConflictingAlias},
		{"merge integrity", &MergeIntegrityError{KeepID: 1, AbsorbID: 1, Reason: "same member"}, ErrMergeIntegrity},
		{"member not found", &MemberNotFoundError{ID: 9}, ErrMemberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("doing work: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestAmbiguousMatchError_ListsCandidates(t *testing.T) {
	err := &AmbiguousMatchError{
		RawName: "jake",
		Candidates: []Suggestion{
			{MemberID: 131, DisplayName: "jake stl", Confidence: 0.8},
			{MemberID: 6359, DisplayName: "jake_stl_314", Confidence: 0.78},
		},
	}
	assert.Contains(t, err.Error(), "#131")
	assert.Contains(t, err.Error(), "#6359")
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("Discord")
	assert.NoError(t, err)
	assert.Equal(t, SourceChat, s)

	s, err = ParseSource("stats")
	assert.NoError(t, err)
	assert.Equal(t, SourceStats, s)

	_, err = ParseSource("irc")
	assert.Error(t, err)
}

func TestParseRecordKind(t *testing.T) {
	k, err := ParseRecordKind("chat_message")
	assert.NoError(t, err)
	assert.Equal(t, KindChatMessage, k)
	assert.Equal(t, SourceChat, k.DefaultSource())

	k, err = ParseRecordKind("snapshot")
	assert.NoError(t, err)
	assert.Equal(t, KindStatSnapshot, k)
	assert.Equal(t, SourceStats, k.DefaultSource())

	_, err = ParseRecordKind("")
	assert.Error(t, err)
}
