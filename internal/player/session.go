// Package player implements the Session (Player) aggregate: per-connection
// authenticated state, outbound queue, presence and status.
package player

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/dungeongate/bancho/internal/protocol"
)

// Transport identifies how a Session's bytes travel.
type Transport uint8

const (
	TransportTCP Transport = iota
	TransportHTTP
	TransportIRC
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportHTTP:
		return "http"
	case TransportIRC:
		return "irc"
	default:
		return "unknown"
	}
}

// PresenceFilter controls which presence bundles a session wants pushed.
type PresenceFilter uint8

const (
	PresenceNone PresenceFilter = iota
	PresenceAll
	PresenceFriends
)

// PreLoginID is the placeholder session id before login completes.
const PreLoginID int32 = -1

// BotUserID is the underlying user id of the server's bot identity; the
// bot's Session.ID is its negation, following the data model's "-id for
// the bot" convention.
const BotUserID int32 = 1

// BotSessionID is the Session.ID carried by the bot pseudo-session.
const BotSessionID int32 = -BotUserID

// Fingerprint is a connecting client's self-reported identity.
type Fingerprint struct {
	VersionDate    int
	VersionString  string
	Adapters       string
	AdaptersMD5    string
	UTCOffset      int
	DisplayCity    bool
	CountryCode    string
	City           string
	Latitude       float64
	Longitude      float64
}

// Session is one authenticated connection's full state. All mutation goes
// through its methods, which hold mu; the outbound queue has its own
// sub-lock so enqueue calls from foreign goroutines never contend with
// channel/match field mutation.
type Session struct {
	mu sync.Mutex

	id         int32
	isBot      bool
	name       string
	safeName   string
	token      string
	transport  Transport
	remoteAddr string

	fingerprint Fingerprint
	status      protocol.Status
	presence    PresenceFilter

	permissions   uint32
	friendOnlyDMs bool
	friends       map[int32]struct{}
	preferredMode uint8

	channels   map[string]struct{}
	spectating *Session
	spectators map[int32]*Session
	matchID    int32 // 0 = not in a match
	inLobby    bool

	lastResponse time.Time
	closed       bool
	closer       io.Closer
	closeOnce    sync.Once

	codec protocol.CodecTables

	outMu    sync.Mutex
	outbound bytes.Buffer
}

// New creates a pre-login Session for the given transport.
func New(transport Transport, remoteAddr string) *Session {
	return &Session{
		id:           PreLoginID,
		transport:    transport,
		remoteAddr:   remoteAddr,
		channels:     make(map[string]struct{}),
		spectators:   make(map[int32]*Session),
		friends:      make(map[int32]struct{}),
		lastResponse: time.Now(),
	}
}

// NewBot creates the permanent bot pseudo-session. It never has outbound
// bytes drained by a transport; SendFrame on it is a no-op.
func NewBot(name string) *Session {
	s := New(TransportTCP, "")
	s.id = BotSessionID
	s.isBot = true
	s.name = name
	s.safeName = safeName(name)
	s.permissions = ^uint32(0)
	return s
}

func safeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ' ' {
			r = '_'
		} else if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}

func (s *Session) IsBot() bool { return s.isBot }

func (s *Session) ID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) SetID(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) SafeName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safeName
}

func (s *Session) SetIdentity(id int32, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.name = name
	s.safeName = safeName(name)
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Session) Transport() Transport { return s.transport }
func (s *Session) RemoteAddr() string   { return s.remoteAddr }

func (s *Session) Fingerprint() Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

func (s *Session) SetFingerprint(f Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = f
}

func (s *Session) Status() protocol.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetStatus(status protocol.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Session) PresenceFilter() PresenceFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

func (s *Session) SetPresenceFilter(f PresenceFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = f
}

func (s *Session) Permissions() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissions
}

func (s *Session) SetPermissions(p uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = p
}

func (s *Session) PreferredMode() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferredMode
}

func (s *Session) SetPreferredMode(mode uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferredMode = mode
}

func (s *Session) FriendOnlyDMs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.friendOnlyDMs
}

func (s *Session) SetFriendOnlyDMs(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friendOnlyDMs = v
}

func (s *Session) SetFriends(ids []int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		s.friends[id] = struct{}{}
	}
}

func (s *Session) IsFriendOf(id int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.friends[id]
	return ok
}

// CodecTables returns the (decoders, encoders) pair selected at login.
func (s *Session) CodecTables() protocol.CodecTables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec
}

func (s *Session) SetCodecTables(t protocol.CodecTables) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec = t
}

// LastResponse returns the monotonic timestamp of the last inbound packet.
func (s *Session) LastResponse() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

// Touch records activity, resetting the keepalive/timeout clock.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponse = time.Now()
}

// SetLastResponse backdates the keepalive/timeout clock directly, for tests
// that need to simulate an idle session without sleeping.
func (s *Session) SetLastResponse(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResponse = t
}

// SetCloser stores the underlying transport connection, so a later Close
// can unblock a transport's blocked read on a timed-out session. TCP is
// the only transport that holds a connection open across a read; HTTP's
// long-poll and IRC's own connection lifecycle don't need this.
func (s *Session) SetCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closer = c
}

// Close closes the stored transport connection, if any. Safe to call more
// than once; only the first call reaches the underlying Close.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.closer
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() { err = c.Close() })
	return err
}

// Closed reports whether the session has already been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MarkClosed idempotently flags the session closed and clears its token.
// Returns false if it was already closed.
func (s *Session) MarkClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.token = ""
	return true
}

// --- channel membership ---

func (s *Session) JoinChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[name] = struct{}{}
}

func (s *Session) PartChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, name)
}

func (s *Session) InChannel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[name]
	return ok
}

func (s *Session) ChannelNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	return out
}

// --- spectator relationship ---

func (s *Session) Spectating() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectating
}

func (s *Session) SetSpectating(host *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spectating = host
}

func (s *Session) AddSpectator(spec *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spectators[spec.ID()] = spec
}

func (s *Session) RemoveSpectator(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spectators, id)
}

func (s *Session) Spectators() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.spectators))
	for _, spec := range s.spectators {
		out = append(out, spec)
	}
	return out
}

func (s *Session) SpectatorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spectators)
}

// --- multiplayer membership ---

func (s *Session) MatchID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

func (s *Session) SetMatchID(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchID = id
}

func (s *Session) InLobby() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inLobby
}

func (s *Session) SetInLobby(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inLobby = v
}

// --- outbound queue ---

// SendFrame encodes value under the session's codec tables and appends the
// framed bytes to the outbound queue. A no-op for the bot session.
func (s *Session) SendFrame(id protocol.ResponseID, value any) error {
	if s.IsBot() {
		return nil
	}
	tables := s.CodecTables()
	if tables.Registry == nil {
		return nil
	}
	frame, err := tables.EncodeFrame(id, value)
	if err != nil {
		return err
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return protocol.WriteFrame(&s.outbound, frame)
}

// DrainOutbound returns and clears the accumulated outbound bytes.
func (s *Session) DrainOutbound() []byte {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.outbound.Len() == 0 {
		return nil
	}
	b := make([]byte, s.outbound.Len())
	copy(b, s.outbound.Bytes())
	s.outbound.Reset()
	return b
}
