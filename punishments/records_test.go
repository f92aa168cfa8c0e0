package punishments

import (
	"net"
	"testing"
	"time"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/marchellc/CentralAPI/database"
	"github.com/marchellc/CentralAPI/wrappers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleWarn() *Warn {
	issued := time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)
	previous, next := issued, issued.Add(time.Hour)
	previousDuration, nextDuration := time.Duration(0), 90*time.Minute
	admin := Player{ID: "76561198000000001@steam", Name: "admin", Address: net.ParseIP("10.0.0.1").To4(), Ranks: []string{"owner"}}
	return &Warn{
		ID:     7,
		Server: "eu-1",
		Reason: "spawn killing",
		Time:   Time{IsPermanent: true, UtcIssued: issued, UtcStart: issued},
		Issuer: admin,
		Target: Player{ID: "76561198000000002@steam", Name: "target", Address: net.ParseIP("2001:db8::1"), Ranks: []string{"player"}},
		Logs: []Log{
			&ReasonUpdate{LogHeader: LogHeader{Server: "eu-1", Time: issued, Creator: &admin}, NewReason: "spawn killing", PreviousReason: "spawnkill"},
			&DurationUpdate{LogHeader: LogHeader{IsDirector: true, Server: "eu-2", Time: issued},
				NewIsExpired: true, NewUtcStart: &next, PreviousUtcStart: &previous,
				NewDuration: &nextDuration, PreviousDuration: &previousDuration},
		},
	}
}

func TestWarnEncoding(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		warn := sampleWarn()
		decoded, err := UnmarshalWarn(warn.Marshal())
		require.NoError(t, err)
		require.Equal(t, warn, decoded)
	})
	t.Run("clone is deep", func(t *testing.T) {
		warn := sampleWarn()
		clone := warn.Clone()
		clone.Logs[0].(*ReasonUpdate).NewReason = "changed"
		require.Equal(t, "spawn killing", warn.Logs[0].(*ReasonUpdate).NewReason)
	})
	t.Run("unknown log type", func(t *testing.T) {
		buf := codec.Encode(func(w *codec.Writer) {
			w.WriteUint64(1)
			w.WriteString("s")
			w.WriteString("r")
			Time{}.Encode(w)
			Player{}.Encode(w)
			Player{}.Encode(w)
			w.WriteCount(1)
			w.WriteUint8(9)
			w.WriteBool(false)
		})
		_, err := UnmarshalWarn(buf)
		require.Error(t, err)
	})
	t.Run("truncated", func(t *testing.T) {
		buf := sampleWarn().Marshal()
		_, err := UnmarshalWarn(buf[:len(buf)-3])
		require.Error(t, err)
	})
}

func TestTime(t *testing.T) {
	start := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	temporary := Time{UtcStart: start, Duration: time.Hour}
	require.Equal(t, start.Add(time.Hour), temporary.Expires())
	require.True(t, temporary.IsActive(start.Add(time.Minute)))
	require.False(t, temporary.IsActive(start.Add(2*time.Hour)))
	require.Equal(t, Forever, Time{IsPermanent: true}.Expires())
	require.False(t, Time{IsPermanent: true, IsExpired: true}.IsActive(start))
}

func TestPlayer(t *testing.T) {
	require.True(t, ServerPlayer.IsServer())
	require.False(t, Player{ID: "server", Name: "server"}.IsServer())
}

func TestWrapper(t *testing.T) {
	registry := wrappers.NewRegistry()
	Register(registry)
	w, ok := registry.Lookup(TagWarn)
	require.True(t, ok)
	buf, err := wrappers.Marshal(w, sampleWarn())
	require.NoError(t, err)
	v, err := wrappers.Unmarshal(w, buf)
	require.NoError(t, err)
	require.True(t, w.Compare(sampleWarn(), v))
	_, err = wrappers.Marshal(w, "not a warn")
	require.Error(t, err)

	list, ok := registry.Lookup(wrappers.ListTag(TagWarn))
	require.True(t, ok)
	_, err = wrappers.Marshal(list, []interface{}{sampleWarn(), sampleWarn()})
	require.NoError(t, err)
}

func TestIDs(t *testing.T) {
	director := database.NewDirector(wrappers.NewRegistry(), zap.NewNop(), database.Options{ServerTable: -1, GlobalTable: -1})
	ids, err := OpenIDs(director, 20)
	require.NoError(t, err)
	for expected := uint64(1); expected <= 3; expected++ {
		id, err := ids.Next("warns")
		require.NoError(t, err)
		require.Equal(t, expected, id)
	}
	id, err := ids.Next("bans")
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestIndex(t *testing.T) {
	director := database.NewDirector(wrappers.NewRegistry(), zap.NewNop(), database.Options{ServerTable: -1, GlobalTable: -1})
	Register(director.Registry())
	index, err := OpenIndex(director, 3, 1, 0)
	require.NoError(t, err)

	warn := sampleWarn()
	warn.Time.IsExpired = false
	require.NoError(t, index.Track(warn))
	found, ok := index.Lookup(7)
	require.True(t, ok)
	require.Equal(t, warn.Reason, found.Reason)
	require.Len(t, index.ActiveFor(warn.Target.ID), 1)
	require.Len(t, index.ActiveFor(warn.Issuer.ID), 0)

	warn.Time.IsExpired = true
	require.NoError(t, index.Track(warn))
	require.Len(t, index.ActiveFor(warn.Target.ID), 0)
	found, ok = index.Lookup(7)
	require.True(t, ok)
	require.True(t, found.Time.IsExpired)

	table, ok := director.TryGetTable(3)
	require.True(t, ok)
	expired, ok := table.TryGetCollection(0)
	require.True(t, ok)
	require.Equal(t, 1, expired.Size())
}
