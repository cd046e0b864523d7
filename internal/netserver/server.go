// Package netserver implements the server-side tick worker of spec §5:
// one UDP listener, a map of connected peers, and a per-tick cycle of
// receive/handshake/tick/snapshot/send. Grounded on original
// NetServerBase.{h,cpp} for the loop shape (single owning worker,
// critical-section-guarded client map, rolling statistics frames) and on
// the teacher's pkg/metricstore.Checkpointing ticker-over-context
// pattern for the Go run-loop idiom.
package netserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/mattlee78/netstate/internal/adminbus"
	"github.com/mattlee78/netstate/internal/netmetrics"
	"github.com/mattlee78/netstate/internal/nodetype"
	"github.com/mattlee78/netstate/internal/prediction"
	"github.com/mattlee78/netstate/internal/protocol"
	"github.com/mattlee78/netstate/internal/sendqueue"
	"github.com/mattlee78/netstate/internal/session"
	"github.com/mattlee78/netstate/internal/snapshot"
	"github.com/mattlee78/netstate/internal/statetree"
	"github.com/mattlee78/netstate/internal/transport"
	"github.com/mattlee78/netstate/internal/wire"
)

// ConnectionState mirrors the client-visible handshake state machine
// (spec §6), tracked here from the server's point of view.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
)

// ConnectedClient is one peer's server-side bookkeeping (spec §4.4,
// original ConnectedClient).
type ConnectedClient struct {
	ID       uint16
	Address  net.Addr
	Username string
	State    ConnectionState

	Queue       *sendqueue.ReliableQueue
	AckTracker  *sendqueue.AckTracker
	Dedup       *sendqueue.Dedup
	History     *sendqueue.SnapshotHistory
	LastAcked   uint32
	lastRecv    int64

	// Inbound mirrors the client-side staging queue (spec §4.3), since a
	// client also uploads a snapshot of its own client-owned nodes and
	// the server must apply it atomically too.
	Inbound *sendqueue.PacketQueue

	Stats Stats
}

// Stats is a peer's rolling traffic counters, surfaced to the embedder
// and (via internal/netmetrics) to prometheus.
type Stats struct {
	DatagramsReceived               uint64
	DatagramsSent                   uint64
	ReliableMessagesSent             uint64
	DuplicateReliableMessagesSkipped uint64
	FracturedSnapshots               uint64
}

// Hooks are optional application callbacks, matching the original's
// overridable ClientConnected/ClientDisconnected/TickServer/
// HandleChatCommand virtuals.
type Hooks struct {
	OnClientConnected    func(c *ConnectedClient)
	OnClientDisconnected func(c *ConnectedClient)
	Tick                 func(deltaSeconds float64, absoluteSeconds float64)
	OnChat               func(from *ConnectedClient, toID uint16, line string)
}

// Server owns the authoritative state tree, the listening socket, and
// every connected peer.
type Server struct {
	mu              sync.Mutex
	tree            *statetree.Tree
	ep              *transport.Endpoint
	clients         map[string]*ConnectedClient
	byID            map[uint16]*ConnectedClient
	nextClientID    uint16
	currentSnapshot uint32
	startTime       time.Time
	lastTick        time.Time
	constants       prediction.Constants
	issuer          *session.Issuer
	hooks           Hooks
	recvBuf         []byte
	timeoutSeconds  float64

	// bus relays presence/chat to sibling netserver processes; nil when
	// this server runs standalone.
	bus     *adminbus.Bus
	metrics *netmetrics.ServerMetrics
}

// Config bundles Server construction parameters.
type Config struct {
	ListenAddr     string
	Constants      prediction.Constants
	SessionSecret  []byte
	TimeoutSeconds float64 // peer considered gone if silent this long; 0 disables
	Hooks          Hooks
	Bus            *adminbus.Bus            // optional cross-process presence/chat relay
	Metrics        *netmetrics.ServerMetrics // optional prometheus counters
}

// New binds a listening socket and returns a Server rooted at tree.
func New(tree *statetree.Tree, cfg Config) (*Server, error) {
	ep, err := transport.Listen(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("netserver: %w", err)
	}
	return &Server{
		tree:           tree,
		ep:             ep,
		clients:        make(map[string]*ConnectedClient),
		byID:           make(map[uint16]*ConnectedClient),
		nextClientID:   1,
		startTime:      time.Now(),
		constants:      cfg.Constants,
		issuer:         session.NewIssuer(cfg.SessionSecret, time.Hour),
		hooks:          cfg.Hooks,
		recvBuf:        make([]byte, 65507),
		timeoutSeconds: cfg.TimeoutSeconds,
		bus:            cfg.Bus,
		metrics:        cfg.Metrics,
	}, nil
}

// SubscribeBus wires this server to forward chat arriving from sibling
// processes on the configured bus to its own connected peers, so a chat
// line submitted on one process's listener still reaches peers attached
// to another. It is a no-op when Config.Bus was left nil.
func (s *Server) SubscribeBus() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.OnChat(func(ev adminbus.ChatEvent) {
		s.mu.Lock()
		target, ok := s.byID[ev.ToID]
		s.mu.Unlock()
		if !ok {
			return
		}
		target.Queue.EnqueueReliable(uint32(protocol.OpReceiveChat), append(encodeFromID(ev.FromID), []byte(ev.Line)...), s.currentSnapshot)
	})
}

func encodeFromID(id uint16) []byte {
	return []byte{byte(id), byte(id >> 8)}
}

// PeerInfo is one connected peer's identity and traffic counters, for
// embedders that want to surface a roster (e.g. internal/adminhttp)
// without this package depending on their presentation format.
type PeerInfo struct {
	ClientID uint16
	Username string
	Stats    Stats
}

// Peers returns a snapshot of every currently connected peer.
func (s *Server) Peers() []PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PeerInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, PeerInfo{ClientID: c.ID, Username: c.Username, Stats: c.Stats})
	}
	return out
}

// Close releases the listening socket.
func (s *Server) Close() error { return s.ep.Close() }

// ListenAddr returns the address the server is bound to.
func (s *Server) ListenAddr() string { return s.ep.LocalAddr().String() }

// SpawnWorker runs RunOnce on a ticker at framesPerSecond until ctx is
// cancelled, matching the teacher's ticker-over-context.Context worker
// idiom (pkg/metricstore.Checkpointing) rather than the source's raw
// OS thread loop.
func (s *Server) SpawnWorker(ctx context.Context, wg *sync.WaitGroup, framesPerSecond int) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := time.Second / time.Duration(framesPerSecond)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunOnce(); err != nil {
					log.Printf("netserver: tick error: %v", err)
				}
			}
		}
	}()
}

// RunOnce drains incoming datagrams, runs one application tick, takes a
// fresh snapshot, and flushes one update per connected peer (spec §5
// steps 1-5).
func (s *Server) RunOnce() error {
	now := time.Now()
	delta := now.Sub(s.lastTick).Seconds()
	if s.lastTick.IsZero() {
		delta = 0
	}
	s.lastTick = now

	if err := s.processIncoming(); err != nil {
		return err
	}

	if s.hooks.Tick != nil {
		s.hooks.Tick(delta, now.Sub(s.startTime).Seconds())
	}

	s.currentSnapshot++
	snap, err := s.tree.Snapshot()
	if err != nil {
		return fmt.Errorf("netserver: snapshot: %w", err)
	}
	snap.Retain()
	defer snap.Release()
	snap.Index = s.currentSnapshot

	s.mu.Lock()
	peers := make([]*ConnectedClient, 0, len(s.clients))
	for _, c := range s.clients {
		peers = append(peers, c)
	}
	s.mu.Unlock()

	peers = s.reapTimedOutClients(peers, now)

	for _, c := range peers {
		if err := s.sendToClient(c, snap, now); err != nil {
			log.Printf("netserver: send to %s failed: %v", c.Address, err)
		}
	}

	if s.metrics != nil {
		s.metrics.SetConnectedClients(len(peers))
		for _, c := range peers {
			s.metrics.ObservePeer(netmetrics.PeerSnapshot{
				ClientID:                         c.ID,
				DatagramsReceived:                c.Stats.DatagramsReceived,
				DatagramsSent:                     c.Stats.DatagramsSent,
				ReliableMessagesSent:              c.Stats.ReliableMessagesSent,
				DuplicateReliableMessagesSkipped: c.Stats.DuplicateReliableMessagesSkipped,
				FracturedSnapshots:                c.Stats.FracturedSnapshots,
			})
		}
		s.metrics.ObserveTick(time.Since(now).Seconds())
	}
	return nil
}

// processIncoming drains every datagram currently queued on the socket
// (spec §5: "non-blocking recv... until no data").
func (s *Server) processIncoming() error {
	for {
		n, from, ok, err := s.ep.Recv(s.recvBuf)
		if err != nil {
			return fmt.Errorf("netserver: recv: %w", err)
		}
		if !ok {
			return nil
		}
		s.handleDatagram(s.recvBuf[:n], from)
	}
}

func (s *Server) handleDatagram(datagram []byte, from net.Addr) {
	client := s.findOrAddClient(from)
	client.lastRecv = time.Now().UnixNano()
	client.Stats.DatagramsReceived++

	accepted := true
	ended := false
	err := wire.Decode(datagram, wire.Handlers{
		OnAcknowledge: func(idx uint32) {
			client.LastAcked = idx
			client.History.RetireThrough(idx)
		},
		OnBeginSnapshot: func(idx uint32) bool {
			accepted = client.AckTracker.BeginSnapshot(idx)
			return accepted
		},
		OnEndSnapshot: func(idx uint32, declaredCount uint32) {
			ended = true
			if client.AckTracker.EndSnapshot(idx, declaredCount) {
				client.Inbound.Append(datagram)
				client.Inbound.CommitSnapshot()
				s.applyClientBatches(client)
			} else {
				client.Inbound.DiscardSnapshot()
				client.Stats.FracturedSnapshots++
			}
		},
		OnReliableMessage: func(m wire.ReliableMessage) {
			s.handleReliableMessage(client, m)
		},
	})
	if err != nil {
		log.Printf("netserver: malformed datagram from %s: %v", from, err)
		return
	}
	if accepted && !ended {
		client.Inbound.Append(datagram)
	}
}

// applyClientBatches re-decodes a client's completed upload batches and
// applies their node events to the authoritative tree, under the same
// atomicity guarantee as the client-side staging queue.
func (s *Server) applyClientBatches(client *ConnectedClient) {
	now := time.Now().UnixNano()
	for _, batch := range client.Inbound.DrainCompleted() {
		for _, datagram := range batch {
			_ = wire.Decode(datagram, wire.Handlers{
				OnNodeUpdate: func(u wire.NodeUpdate) {
					_ = s.tree.UpdateNodeData(u.NodeID, u.Storage, now, s.constants)
				},
			})
		}
	}
}

func (s *Server) handleReliableMessage(client *ConnectedClient, m wire.ReliableMessage) {
	if m.Reliable {
		if client.Dedup.Observe(m.UniqueIndex) {
			client.Stats.DuplicateReliableMessagesSkipped++
			return
		}
	}
	switch protocol.Opcode(m.Opcode) {
	case protocol.OpConnectAttempt:
		s.handleConnectAttempt(client, m.Payload)
	case protocol.OpDisconnect:
		s.removeClient(client)
	case protocol.OpSubmitChat:
		if len(m.Payload) >= 2 {
			toID := uint16(m.Payload[0]) | uint16(m.Payload[1])<<8
			line := string(m.Payload[2:])
			if s.hooks.OnChat != nil {
				s.hooks.OnChat(client, toID, line)
			}
			if s.bus != nil {
				if err := s.bus.PublishChat(adminbus.ChatEvent{FromID: client.ID, ToID: toID, Line: line}); err != nil {
					log.Printf("netserver: chat publish failed: %v", err)
				}
			}
		}
	}
}

func (s *Server) handleConnectAttempt(client *ConnectedClient, payload []byte) {
	attempt, err := protocol.DecodeConnectAttempt(payload)
	if err != nil {
		return
	}
	ack := protocol.ConnectAck{Nonce: attempt.Nonce, ClientTicks: attempt.ClientTicks}
	if attempt.ProtocolVersion != protocol.Version {
		ack.Success = false
		s.sendAck(client, ack)
		return
	}
	client.Username = attempt.Username
	client.State = StateConnected
	ack.Success = true
	ack.ServerTicks = time.Now().UnixNano()
	ack.ServerTickFreq = int64(time.Second)
	s.sendAck(client, ack)

	if s.hooks.OnClientConnected != nil {
		s.hooks.OnClientConnected(client)
	}
	if s.bus != nil {
		if err := s.bus.PublishPresence(adminbus.PresenceEvent{ClientID: client.ID, Username: client.Username, Joined: true}); err != nil {
			log.Printf("netserver: presence publish failed: %v", err)
		}
	}
}

func (s *Server) sendAck(client *ConnectedClient, ack protocol.ConnectAck) {
	client.Queue.EnqueueReliable(uint32(protocol.OpConnectAck), ack.Encode(), s.currentSnapshot)
}

// findOrAddClient resolves the peer for addr, registering a new
// ConnectedClient on first contact (spec's FindOrAddClient).
func (s *Server) findOrAddClient(addr net.Addr) *ConnectedClient {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[key]; ok {
		return c
	}
	c := &ConnectedClient{
		ID:         s.nextClientID,
		Address:    addr,
		State:      StateConnecting,
		Queue:      sendqueue.NewReliableQueue(),
		AckTracker: sendqueue.NewAckTracker(),
		Dedup:      sendqueue.NewDedup(),
		History:    sendqueue.NewSnapshotHistory(),
		Inbound:    sendqueue.NewPacketQueue(),
	}
	s.nextClientID++
	s.clients[key] = c
	s.byID[c.ID] = c
	return c
}

// reapTimedOutClients drops peers silent for longer than timeoutSeconds
// (disabled when timeoutSeconds is 0) and returns the survivors, so the
// current tick's send pass skips them.
func (s *Server) reapTimedOutClients(peers []*ConnectedClient, now time.Time) []*ConnectedClient {
	if s.timeoutSeconds <= 0 {
		return peers
	}
	live := peers[:0]
	for _, c := range peers {
		if c.lastRecv != 0 && now.Sub(time.Unix(0, c.lastRecv)).Seconds() > s.timeoutSeconds {
			s.removeClient(c)
			continue
		}
		live = append(live, c)
	}
	return live
}

func (s *Server) removeClient(c *ConnectedClient) {
	s.mu.Lock()
	delete(s.clients, c.Address.String())
	delete(s.byID, c.ID)
	s.mu.Unlock()
	c.History.Close()
	if s.metrics != nil {
		s.metrics.ForgetPeer(c.ID)
	}
	if s.hooks.OnClientDisconnected != nil {
		s.hooks.OnClientDisconnected(c)
	}
	if s.bus != nil {
		if err := s.bus.PublishPresence(adminbus.PresenceEvent{ClientID: c.ID, Username: c.Username, Joined: false}); err != nil {
			log.Printf("netserver: presence publish failed: %v", err)
		}
	}
}

// sendToClient diffs snap against the client's last-acknowledged
// snapshot, encodes the delta plus any pending messages, and flushes
// one round of datagrams (spec §5 step 5).
func (s *Server) sendToClient(c *ConnectedClient, snap *snapshot.Snapshot, now time.Time) error {
	var sendErr error
	enc := wire.NewEncoder(func(b []byte) error {
		c.Stats.DatagramsSent++
		return s.ep.SendTo(c.Address, b)
	})
	enc.BeginSnapshot(snap.Index)

	resend := c.Queue.RetireAcked(c.LastAcked)
	for _, m := range append(c.Queue.DrainPending(), resend...) {
		var err error
		if m.Reliable {
			err = enc.WriteReliableMessage(m.Opcode, m.UniqueIndex, m.Payload)
			c.Stats.ReliableMessagesSent++
		} else {
			err = enc.WriteUnreliableMessage(m.Opcode, m.Payload)
		}
		if err != nil && sendErr == nil {
			sendErr = err
		}
	}

	baseline := c.History.LastAcked(c.LastAcked)
	snapshot.Diff(baseline, snap, func(ev snapshot.DiffEvent) {
		if sendErr != nil {
			return
		}
		sendErr = applyDiffEvent(enc, ev)
	})

	snap.Retain()
	c.History.Push(snap)

	if err := enc.EndSnapshot(snap.Index); err != nil && sendErr == nil {
		sendErr = err
	}
	return sendErr
}

// applyDiffEvent encodes one DiffEvent as the mini-packet(s) spec §4.3
// calls for: Created emits a NodeCreate followed by the leaf's initial
// value (for non-Complex nodes), Deleted emits NodeDelete, Changed
// emits NodeUpdate, Same emits nothing.
func applyDiffEvent(enc *wire.Encoder, ev snapshot.DiffEvent) error {
	switch ev.Kind {
	case snapshot.Created:
		n := ev.New
		var parentID uint16
		if ev.ParentInNew != nil {
			parentID = uint16(ev.ParentInNew.ID)
		}
		if n.Type == nodetype.Complex || len(n.CreationBlob) > 0 {
			if err := enc.WriteNodeCreateComplex(n.ID, parentID, uint8(n.Type), n.CreationBlob); err != nil {
				return err
			}
		} else {
			if err := enc.WriteNodeCreateSimple(n.ID, parentID, uint8(n.Type), n.CreationCode); err != nil {
				return err
			}
		}
		if n.Type != nodetype.Complex && n.Bytes != nil {
			return enc.WriteNodeUpdate(n.ID, n.Bytes)
		}
		return nil
	case snapshot.Deleted:
		return enc.WriteNodeDelete(ev.Old.ID)
	case snapshot.Changed:
		return enc.WriteNodeUpdate(ev.New.ID, ev.New.Bytes)
	default: // Same
		return nil
	}
}
