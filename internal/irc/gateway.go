// Package irc implements the IRC gateway (C11): a textual subset of RFC
// 1459 mapped onto the chat core, so any IRC client can join channels and
// exchange messages with TCP/HTTP bancho clients.
package irc

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/dungeongate/bancho/internal/chat"
	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/player"
	"github.com/dungeongate/bancho/internal/registry"
)

const serverName = "bancho"

// ircConnTable maps a live IRC session's id to its connection, so a message
// originating from a non-IRC client can be relayed into the right socket.
type ircConnTable struct {
	mu    sync.RWMutex
	byID  map[int32]*ircConn
}

func newIrcConnTable() *ircConnTable {
	return &ircConnTable{byID: make(map[int32]*ircConn)}
}

func (t *ircConnTable) store(id int32, c *ircConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = c
}

func (t *ircConnTable) load(id int32) (*ircConn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byID[id]
	return c, ok
}

func (t *ircConnTable) delete(id int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// Gateway accepts IRC connections and speaks the supported command subset:
// USER, PASS, NICK, JOIN, PART, TOPIC, PRIVMSG, MOTD, LUSERS, PING, PONG,
// AWAY, WHO, WHOIS, MODE, QUIT.
type Gateway struct {
	router   *chat.Router
	registry *registry.Registry
	repo     collab.Repository
	verifier collab.PasswordVerifier
	logger   *slog.Logger
	ircConns *ircConnTable
}

// NewGateway constructs a Gateway bound to the shared chat and registry
// cores and the password collaborator used to authenticate PASS.
func NewGateway(router *chat.Router, reg *registry.Registry, repo collab.Repository, verifier collab.PasswordVerifier, logger *slog.Logger) *Gateway {
	return &Gateway{router: router, registry: reg, repo: repo, verifier: verifier, logger: logger, ircConns: newIrcConnTable()}
}

// Serve accepts connections on ln until ctx is cancelled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("irc: accept: %w", err)
			}
		}
		go g.handle(ctx, conn)
	}
}

// ircConn tracks the pending handshake fields for one connection until login
// completes.
type ircConn struct {
	net.Conn
	w        *bufio.Writer
	nick     string
	userName string
	passMD5  string
}

func (c *ircConn) reply(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\r\n", args...)
	c.w.Flush()
}

func (g *Gateway) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ic := &ircConn{Conn: conn, w: bufio.NewWriter(conn)}
	scanner := bufio.NewScanner(conn)

	var s *player.Session
	defer func() {
		if s != nil {
			g.disconnect(s)
		}
	}()

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		command, params := parseLine(line)

		if s == nil {
			var err error
			s, err = g.handshake(ctx, ic, command, params)
			if err != nil {
				ic.reply(":%s 464 :%s", serverName, err.Error())
				return
			}
			continue
		}

		g.dispatch(ctx, s, ic, command, params)
		s.Touch()

		if command == "QUIT" {
			return
		}
	}
}

// parseLine splits an IRC line into its command and parameter list,
// honoring the trailing ':'-prefixed parameter convention.
func parseLine(line string) (string, []string) {
	fields := strings.SplitN(line, " :", 2)
	head := strings.Fields(fields[0])
	if len(head) == 0 {
		return "", nil
	}
	command := strings.ToUpper(head[0])
	params := head[1:]
	if len(fields) == 2 {
		params = append(params, fields[1])
	}
	return command, params
}

// handshake processes PASS/NICK/USER lines until both NICK and USER have
// arrived, in either order, then authenticates with whatever PASS was given
// (none is checked as an empty password) and creates the session.
func (g *Gateway) handshake(ctx context.Context, ic *ircConn, command string, params []string) (*player.Session, error) {
	switch command {
	case "PASS":
		if len(params) > 0 {
			ic.passMD5 = params[0]
		}
		return nil, nil
	case "NICK":
		if len(params) > 0 {
			ic.nick = params[0]
		}
		if ic.userName == "" {
			return nil, nil
		}
	case "USER":
		if len(params) > 0 {
			ic.userName = params[0]
		}
	default:
		return nil, nil
	}

	if ic.nick == "" {
		return nil, nil
	}

	u, err := g.repo.UserByName(ctx, ic.nick)
	if err != nil || u == nil {
		return nil, fmt.Errorf("no such user")
	}
	if !g.verifier.Check(ic.passMD5, u.PasswordHash) {
		return nil, fmt.Errorf("password incorrect")
	}
	if u.Restricted || !u.Activated {
		return nil, fmt.Errorf("account restricted")
	}

	s := player.New(player.TransportIRC, ic.RemoteAddr().String())
	s.SetIdentity(-u.ID, u.Name)
	s.SetPermissions(u.Permissions)
	s.SetPreferredMode(u.PreferredMode)
	s.SetFriendOnlyDMs(u.FriendOnlyDMs)
	s.SetFriends(u.Friends)
	s.Touch()

	if displaced := g.registry.Append(s); displaced != nil {
		g.disconnect(displaced)
	}

	ic.reply(":%s 001 %s :Welcome to bancho, %s", serverName, u.Name, u.Name)
	g.motd(ic)

	g.ircConns.store(s.ID(), ic)
	return s, nil
}

// dispatch handles post-login commands.
func (g *Gateway) dispatch(ctx context.Context, s *player.Session, ic *ircConn, command string, params []string) {
	switch command {
	case "JOIN":
		for _, name := range splitCSV(params, 0) {
			g.join(s, ic, name)
		}
	case "PART":
		for _, name := range splitCSV(params, 0) {
			g.part(s, ic, name)
		}
	case "TOPIC":
		g.topic(ic, params)
	case "PRIVMSG":
		g.privmsg(ctx, s, params)
	case "MOTD":
		g.motd(ic)
	case "LUSERS":
		ic.reply(":%s 251 :There are %d users online", serverName, g.registry.Count())
	case "PING":
		ic.reply(":%s PONG %s :%s", serverName, serverName, paramOr(params, 0, serverName))
	case "PONG":
		// no-op, liveness already recorded by the caller's Touch.
	case "AWAY":
		// status-text away state is not modelled; acknowledged and ignored.
	case "WHO":
		g.who(ic, params)
	case "WHOIS":
		g.whois(ic, params)
	case "MODE":
		// channel/user mode changes are not modelled beyond permission gates
		// already enforced by chat.Router; acknowledged and ignored.
	case "QUIT":
		// handled by the caller after dispatch returns.
	default:
		ic.reply(":%s 421 %s :Unknown command", serverName, command)
	}
}

func (g *Gateway) join(s *player.Session, ic *ircConn, name string) {
	ch, ok := g.router.ByName(name)
	if !ok {
		ch = chat.NewChannel(name, "", 0, 0, true, "")
		g.router.Register(ch)
	}
	if err := g.router.Join(ch, s); err != nil {
		ic.reply(":%s 473 %s :Cannot join channel", serverName, name)
		return
	}
	ic.reply(":%s!%s@%s JOIN %s", s.Name(), s.Name(), serverName, name)
	if ch.Topic != "" {
		ic.reply(":%s 332 %s %s :%s", serverName, s.Name(), name, ch.Topic)
	}
}

func (g *Gateway) part(s *player.Session, ic *ircConn, name string) {
	ch, ok := g.router.ByName(name)
	if !ok {
		return
	}
	g.router.Part(ch, s)
	ic.reply(":%s!%s@%s PART %s", s.Name(), s.Name(), serverName, name)
}

func (g *Gateway) topic(ic *ircConn, params []string) {
	name := paramOr(params, 0, "")
	ch, ok := g.router.ByName(name)
	if !ok {
		ic.reply(":%s 403 %s :No such channel", serverName, name)
		return
	}
	ic.reply(":%s 332 %s :%s", serverName, name, ch.Topic)
}

// privmsg maps PRIVMSG target onto either a channel (#-prefixed) or a
// direct message, reusing the shared chat core so IRC and non-IRC clients
// exchange messages transparently.
func (g *Gateway) privmsg(ctx context.Context, s *player.Session, params []string) {
	if len(params) < 2 {
		return
	}
	target := params[0]
	text := params[1]

	if strings.HasPrefix(target, "#") {
		ch, ok := g.router.ByName(target)
		if !ok {
			return
		}
		_ = g.router.Send(ctx, ch, s, text, false)
		return
	}
	_ = g.router.PrivateMessage(ctx, s, target, text)
}

func (g *Gateway) who(ic *ircConn, params []string) {
	name := paramOr(params, 0, "")
	ch, ok := g.router.ByName(name)
	if !ok {
		return
	}
	for _, m := range ch.Members() {
		ic.reply(":%s 352 %s %s %s %s %s H :0 %s", serverName, name, m.Name(), serverName, serverName, m.Name(), m.Name())
	}
	ic.reply(":%s 315 %s :End of /WHO list", serverName, name)
}

func (g *Gateway) whois(ic *ircConn, params []string) {
	name := paramOr(params, 0, "")
	target, ok := g.registry.ByName(collab.SafeName(name))
	if !ok {
		ic.reply(":%s 401 %s :No such nick", serverName, name)
		return
	}
	ic.reply(":%s 311 %s %s %s %s * :%s", serverName, name, target.Name(), serverName, serverName, target.Name())
	ic.reply(":%s 318 %s :End of /WHOIS list", serverName, name)
}

func (g *Gateway) motd(ic *ircConn) {
	ic.reply(":%s 375 :- bancho Message of the day -", serverName)
	ic.reply(":%s 376 :End of /MOTD command", serverName)
}

// RelayPrivmsg delivers a message that originated from a non-IRC client
// into the given channel's joined IRC connections, as a PRIVMSG line.
func (g *Gateway) RelayPrivmsg(channelName, senderName, text string) {
	ch, ok := g.router.ByName(channelName)
	if !ok {
		return
	}
	for _, m := range ch.Members() {
		if m.Transport() != player.TransportIRC {
			continue
		}
		if ic, ok := g.ircConns.load(m.ID()); ok {
			ic.reply(":%s!%s@%s PRIVMSG %s :%s", senderName, senderName, serverName, channelName, text)
		}
	}
}

func (g *Gateway) disconnect(s *player.Session) {
	if !s.MarkClosed() {
		return
	}
	for _, name := range s.ChannelNames() {
		if ch, ok := g.router.ByName(name); ok {
			g.router.Part(ch, s)
		}
	}
	g.registry.Remove(s)
	g.ircConns.delete(s.ID())
}

func paramOr(params []string, i int, fallback string) string {
	if i < len(params) {
		return params[i]
	}
	return fallback
}

func splitCSV(params []string, i int) []string {
	if i >= len(params) {
		return nil
	}
	return strings.Split(params[i], ",")
}
