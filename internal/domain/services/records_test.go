package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/clanid/internal/domain/entities"
	"github.com/ersonp/clanid/internal/infrastructure/parsers"
)

func TestConvertRecords(t *testing.T) {
	raw := []parsers.RawRecord{
		{Kind: "stats", ExternalID: "s1", RawName: "jake stl 314", ObservedAt: "2024-03-01T12:00:00Z", LineNum: 2},
		{Kind: "chat_message", ExternalID: " c1 ", RawName: "Jake", LineNum: 3},
		{Kind: "stat_snapshot", ExternalID: "s2", RawName: "Jake", Source: "discord", ObservedAt: "2024-03-02", LineNum: 4},
		{Kind: "tweet", ExternalID: "t1", RawName: "x", LineNum: 5},
		{Kind: "chat", ExternalID: "", RawName: "x", LineNum: 6},
		{Kind: "chat", ExternalID: "c2", RawName: "x", Source: "myspace", LineNum: 7},
		{Kind: "chat", ExternalID: "c3", RawName: "x", ObservedAt: "yesterday", LineNum: 8},
	}

	records, errs := ConvertRecords(raw)
	require.Len(t, records, 3)
	require.Len(t, errs, 4)

	assert.Equal(t, entities.KindStatSnapshot, records[0].Kind)
	assert.Equal(t, entities.SourceStats, records[0].Source)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), records[0].ObservedAt)

	assert.Equal(t, "c1", records[1].ExternalID)
	assert.Equal(t, entities.SourceChat, records[1].Source)
	assert.True(t, records[1].ObservedAt.IsZero())

	assert.Equal(t, entities.SourceChat, records[2].Source)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), records[2].ObservedAt)

	fields := make([]string, len(errs))
	for i, e := range errs {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{"kind", "external_id", "source", "observed_at"}, fields)
	assert.Equal(t, 5, errs[0].Line)
	assert.Equal(t, "tweet", errs[0].Value)
}

func TestConvertMergePairs(t *testing.T) {
	raw := []parsers.RawMergePair{
		{Keep: 6359, Absorb: 131, LineNum: 2},
		{Keep: 0, Absorb: 131, LineNum: 3},
		{Keep: 5, Absorb: -1, LineNum: 4},
		{Keep: 7, Absorb: 7, LineNum: 5},
		{Keep: 8, Absorb: 9},
	}

	pairs, errs := ConvertMergePairs(raw)
	assert.Equal(t, []entities.MergePair{{KeepID: 6359, AbsorbID: 131}, {KeepID: 8, AbsorbID: 9}}, pairs)
	require.Len(t, errs, 3)
	assert.Equal(t, "keep", errs[0].Field)
	assert.Equal(t, "absorb", errs[1].Field)
	assert.Contains(t, errs[2].Message, "both 7")
}

func TestImportError_Error(t *testing.T) {
	assert.Equal(t, "line 3: bad kind", ImportError{Line: 3, Message: "bad kind"}.Error())
	assert.Equal(t, "bad kind", ImportError{Message: "bad kind"}.Error())
}
