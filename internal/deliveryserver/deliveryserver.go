// Package deliveryserver fans MLSCiphertext frames out to a group's
// members, online or not: a local register/unregister/broadcast select
// loop handles directly connected clients, Redis publish/subscribe
// fans a frame out to the *other* delivery-server processes a
// multi-instance deployment would run, and every member, online or not,
// also gets the frame queued in Postgres, drained when the member next
// joins the group.
package deliveryserver

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/FHMS-ITS/mls-explained/internal/auth"
	"github.com/FHMS-ITS/mls-explained/internal/blobstore"
	"github.com/FHMS-ITS/mls-explained/internal/session"
)

// redisChannelPrefix namespaces the pub/sub channel per group.
const redisChannelPrefix = "mls:group:"

// offloadThreshold is the payload size above which Broadcast pushes the
// frame to blobstore and fans out a small reference instead, so large
// Welcome payloads don't ride the same channel as ordinary handshake
// traffic.
const offloadThreshold = 64 * 1024

type incomingFrame struct {
	from    *Client
	payload []byte
}

// Hub is one delivery-server process's in-memory connection registry
// plus its Postgres/Redis backing.
type Hub struct {
	id    string
	db    *sql.DB
	redis *redis.Client
	blobs *blobstore.Store
	auth  *auth.Authenticator

	mu      sync.Mutex
	clients map[*Client]bool
	groups  map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	incoming   chan incomingFrame
}

func NewHub(db *sql.DB, redisClient *redis.Client, blobs *blobstore.Store, authenticator *auth.Authenticator) *Hub {
	return &Hub{
		id:         uuid.New().String(),
		db:         db,
		redis:      redisClient,
		blobs:      blobs,
		auth:       authenticator,
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan incomingFrame),
	}
}

// Authenticate checks that token is valid for userName. A Hub with no
// Authenticator configured accepts every caller.
func (h *Hub) Authenticate(userName, token string) error {
	if h.auth == nil {
		return nil
	}
	return h.auth.Verify(userName, token)
}

// Run drives the hub's select loop. It blocks; call it from its own
// goroutine.
func (h *Hub) Run(ctx context.Context) {
	go h.subscribeRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for _, members := range h.groups {
					delete(members, client)
				}
				close(client.Send)
			}
			h.mu.Unlock()
		case frame := <-h.incoming:
			h.handleIncoming(ctx, frame)
		}
	}
}

func (h *Hub) handleIncoming(ctx context.Context, frame incomingFrame) {
	groupID, err := session.GroupIDFromCiphertext(frame.payload)
	if err != nil {
		log.Printf("[delivery] dropping unframeable message from %s: %v", frame.from.UserName, err)
		return
	}
	if err := h.Broadcast(ctx, string(groupID), frame.payload); err != nil {
		log.Printf("[delivery] broadcast for group %s failed: %v", groupID, err)
	}
}

// JoinGroup attaches client to groupID's local fan-out set and flushes
// any frames that queued while it was offline.
func (h *Hub) JoinGroup(ctx context.Context, client *Client, groupID string) error {
	h.mu.Lock()
	members, ok := h.groups[groupID]
	if !ok {
		members = make(map[*Client]bool)
		h.groups[groupID] = members
	}
	members[client] = true
	h.mu.Unlock()

	if _, err := h.db.ExecContext(ctx, `
		INSERT INTO mls_group_members (group_id, user_name)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_name) DO NOTHING
	`, groupID, client.UserName); err != nil {
		return fmt.Errorf("deliveryserver: join group: %w", err)
	}

	return h.drainPending(ctx, client, groupID)
}

// Broadcast fans payload out to groupID: locally connected members get
// it directly, Redis carries it to every other delivery-server process,
// and every member (online here or not) gets a Postgres row so a
// reconnect after the fact still sees it.
func (h *Hub) Broadcast(ctx context.Context, groupID string, payload []byte) error {
	outgoing := payload
	if len(payload) > offloadThreshold && h.blobs != nil {
		ref, err := h.blobs.Put(ctx, []byte(groupID), payload)
		if err != nil {
			return fmt.Errorf("deliveryserver: broadcast: offload: %w", err)
		}
		outgoing = encodeBlobReference(ref)
	}

	h.fanOutLocal(groupID, outgoing)

	if h.redis != nil {
		// Prefix with this hub's instance id so subscribeRedis can
		// recognize and skip its own publishes — fanOutLocal above
		// already delivered them, and re-delivering via the Redis echo
		// would hand every locally connected client a duplicate frame.
		if err := h.redis.Publish(ctx, redisChannelPrefix+groupID, append([]byte(h.id), outgoing...)).Err(); err != nil {
			log.Printf("[delivery] redis publish for group %s failed: %v", groupID, err)
		}
	}

	rows, err := h.db.QueryContext(ctx, `SELECT user_name FROM mls_group_members WHERE group_id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("deliveryserver: broadcast: list members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userName string
		if err := rows.Scan(&userName); err != nil {
			return fmt.Errorf("deliveryserver: broadcast: scan member: %w", err)
		}
		members = append(members, userName)
	}

	for _, userName := range members {
		if _, err := h.db.ExecContext(ctx, `
			INSERT INTO mls_pending_messages (id, group_id, user_name, payload, created_at, delivered)
			VALUES ($1, $2, $3, $4, $5, false)
		`, uuid.New(), groupID, userName, outgoing, time.Now()); err != nil {
			log.Printf("[delivery] queue pending message for %s failed: %v", userName, err)
		}
	}

	return nil
}

func (h *Hub) fanOutLocal(groupID string, payload []byte) {
	h.mu.Lock()
	members := h.groups[groupID]
	var targets []*Client
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.Send <- payload:
		default:
			log.Printf("[delivery] send channel full for %s, dropping connection", c.UserName)
			h.unregister <- c
		}
	}
}

func (h *Hub) drainPending(ctx context.Context, client *Client, groupID string) error {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, payload FROM mls_pending_messages
		WHERE group_id = $1 AND user_name = $2 AND delivered = false
		ORDER BY created_at ASC
	`, groupID, client.UserName)
	if err != nil {
		return fmt.Errorf("deliveryserver: drain pending: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	var payloads [][]byte
	for rows.Next() {
		var id uuid.UUID
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("deliveryserver: drain pending: scan: %w", err)
		}
		ids = append(ids, id)
		payloads = append(payloads, payload)
	}

	for i, payload := range payloads {
		select {
		case client.Send <- payload:
		default:
			log.Printf("[delivery] send channel full flushing pending message to %s", client.UserName)
		}
		if _, err := h.db.ExecContext(ctx, `UPDATE mls_pending_messages SET delivered = true WHERE id = $1`, ids[i]); err != nil {
			log.Printf("[delivery] mark delivered failed: %v", err)
		}
	}

	return nil
}

// subscribeRedis re-broadcasts frames published by other delivery-server
// processes to this process's locally connected clients, matching the
// teacher's SubscribeToConversation consumer loop.
func (h *Hub) subscribeRedis(ctx context.Context) {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(msg.Payload) < len(h.id) {
				continue
			}
			origin, payload := msg.Payload[:len(h.id)], msg.Payload[len(h.id):]
			if origin == h.id {
				continue // this hub's own publish; fanOutLocal already delivered it
			}
			groupID := msg.Channel[len(redisChannelPrefix):]
			h.fanOutLocal(groupID, []byte(payload))
		}
	}
}
