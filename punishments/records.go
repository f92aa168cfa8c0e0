package punishments

import (
	"fmt"
	"net"
	"time"

	"github.com/marchellc/CentralAPI/codec"
	"github.com/pkg/errors"
)

var (
	ErrUnknownLogType = errors.New("unknown punishment log type")
)

// Player identifies who issued or received a punishment.
type Player struct {
	ID      string
	Name    string
	Address net.IP
	Ranks   []string
}

// ServerPlayer stands for punishments issued by the server itself.
var ServerPlayer = Player{ID: "server", Name: "server", Ranks: []string{"server"}}

func (p Player) IsServer() bool {
	return p.ID == ServerPlayer.ID && p.Name == ServerPlayer.Name && len(p.Ranks) == 1 && p.Ranks[0] == ServerPlayer.Ranks[0]
}

func (p Player) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

func (p Player) Encode(w *codec.Writer) {
	w.WriteString(p.ID)
	w.WriteString(p.Name)
	w.WriteIP(p.Address)
	w.WriteStrings(p.Ranks)
}

func ReadPlayer(r *codec.Reader) Player {
	p := Player{
		ID:      r.ReadString(),
		Name:    r.ReadString(),
		Address: r.ReadIP(),
		Ranks:   r.ReadStrings(),
	}
	if len(p.Address) == 0 {
		p.Address = nil
	}
	if len(p.Ranks) == 0 {
		p.Ranks = nil
	}
	return p
}

// Time is the validity window of a punishment.
type Time struct {
	IsPermanent bool
	IsExpired   bool
	UtcIssued   time.Time
	UtcStart    time.Time
	Duration    time.Duration
}

// Forever is returned by Expires for permanent punishments.
var Forever = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Expires returns when the punishment ends: Forever when permanent, the zero
// time when already expired.
func (t Time) Expires() time.Time {
	switch {
	case t.IsPermanent:
		return Forever
	case t.IsExpired:
		return time.Time{}
	default:
		return t.UtcStart.Add(t.Duration)
	}
}

// IsActive reports whether the punishment applies at now.
func (t Time) IsActive(now time.Time) bool {
	return !t.IsExpired && (t.IsPermanent || now.Before(t.Expires()))
}

func (t Time) Encode(w *codec.Writer) {
	w.WriteBool(t.IsPermanent)
	w.WriteBool(t.IsExpired)
	w.WriteDate(t.UtcIssued)
	w.WriteDate(t.UtcStart)
	w.WriteDuration(t.Duration)
}

func ReadTime(r *codec.Reader) Time {
	return Time{
		IsPermanent: r.ReadBool(),
		IsExpired:   r.ReadBool(),
		UtcIssued:   r.ReadDate(),
		UtcStart:    r.ReadDate(),
		Duration:    r.ReadDuration(),
	}
}

type LogType uint8

const (
	LogReasonUpdate   LogType = 0
	LogDurationUpdate LogType = 1
)

// LogHeader is shared by every log entry. Creator is nil for entries written
// by a director rather than a player.
type LogHeader struct {
	IsDirector bool
	Server     string
	Reason     string
	Time       time.Time
	Creator    *Player
}

func (h *LogHeader) header() *LogHeader { return h }

// Log is one entry of a punishment's history.
type Log interface {
	Type() LogType
	header() *LogHeader
	encode(w *codec.Writer)
	decode(r *codec.Reader)
}

type ReasonUpdate struct {
	LogHeader
	NewReason      string
	PreviousReason string
}

func (l *ReasonUpdate) Type() LogType { return LogReasonUpdate }
func (l *ReasonUpdate) encode(w *codec.Writer) {
	w.WriteString(l.NewReason)
	w.WriteString(l.PreviousReason)
}
func (l *ReasonUpdate) decode(r *codec.Reader) {
	l.NewReason = r.ReadString()
	l.PreviousReason = r.ReadString()
}

// DurationUpdate records a change of the validity window. Start and duration
// changes are optional and travel behind a presence flag.
type DurationUpdate struct {
	LogHeader
	NewIsExpired        bool
	PreviousIsExpired   bool
	NewIsPermanent      bool
	PreviousIsPermanent bool
	NewUtcStart         *time.Time
	PreviousUtcStart    *time.Time
	NewDuration         *time.Duration
	PreviousDuration    *time.Duration
}

func (l *DurationUpdate) Type() LogType { return LogDurationUpdate }
func (l *DurationUpdate) encode(w *codec.Writer) {
	w.WriteBool(l.NewIsExpired)
	w.WriteBool(l.PreviousIsExpired)
	w.WriteBool(l.NewIsPermanent)
	w.WriteBool(l.PreviousIsPermanent)
	hasStart := l.NewUtcStart != nil && l.PreviousUtcStart != nil
	w.WriteBool(hasStart)
	if hasStart {
		w.WriteDate(*l.NewUtcStart)
		w.WriteDate(*l.PreviousUtcStart)
	}
	hasDuration := l.NewDuration != nil && l.PreviousDuration != nil
	w.WriteBool(hasDuration)
	if hasDuration {
		w.WriteDuration(*l.NewDuration)
		w.WriteDuration(*l.PreviousDuration)
	}
}
func (l *DurationUpdate) decode(r *codec.Reader) {
	l.NewIsExpired = r.ReadBool()
	l.PreviousIsExpired = r.ReadBool()
	l.NewIsPermanent = r.ReadBool()
	l.PreviousIsPermanent = r.ReadBool()
	if r.ReadBool() {
		newStart, previousStart := r.ReadDate(), r.ReadDate()
		l.NewUtcStart, l.PreviousUtcStart = &newStart, &previousStart
	}
	if r.ReadBool() {
		newDuration, previousDuration := r.ReadDuration(), r.ReadDuration()
		l.NewDuration, l.PreviousDuration = &newDuration, &previousDuration
	}
}

func newLog(t LogType) (Log, error) {
	switch t {
	case LogReasonUpdate:
		return &ReasonUpdate{}, nil
	case LogDurationUpdate:
		return &DurationUpdate{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownLogType, "%d", t)
	}
}

func encodeLogs(w *codec.Writer, logs []Log) {
	w.WriteCount(len(logs))
	for _, log := range logs {
		h := log.header()
		w.WriteUint8(uint8(log.Type()))
		w.WriteBool(h.IsDirector)
		w.WriteString(h.Server)
		w.WriteString(h.Reason)
		w.WriteDate(h.Time)
		if !h.IsDirector {
			creator := ServerPlayer
			if h.Creator != nil {
				creator = *h.Creator
			}
			creator.Encode(w)
		}
		log.encode(w)
	}
}

// readLogs stops at the first unknown log type: its length is not known, so
// nothing after it can be read.
func readLogs(r *codec.Reader) []Log {
	n := r.ReadCount()
	var logs []Log
	for i := 0; i < n && r.Err() == nil; i++ {
		log, err := newLog(LogType(r.ReadUint8()))
		if err != nil {
			r.Fail(err)
			return logs
		}
		h := log.header()
		h.IsDirector = r.ReadBool()
		h.Server = r.ReadString()
		h.Reason = r.ReadString()
		h.Time = r.ReadDate()
		if !h.IsDirector {
			creator := ReadPlayer(r)
			h.Creator = &creator
		}
		log.decode(r)
		logs = append(logs, log)
	}
	return logs
}
