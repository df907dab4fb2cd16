// Package ws fans accepted events out to live WebSocket subscribers,
// grouped by project slug.
package ws

// Subscriber abstracts a streaming client. Send must not block: the hub's
// fanout loop calls it inline, and a blocking subscriber would stall every
// other stream.
type Subscriber interface {
	// Send queues a payload for delivery and reports whether the
	// subscriber can still accept messages.
	Send(payload []byte) bool
	Close()
}

// Hub manages stream subscriptions by project slug. All subscription state
// is owned by the run goroutine; callers talk to it through channels only.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with project slug.
type message struct {
	project string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	project string
	client  Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.project]; !ok {
				h.clients[sub.project] = make(map[Subscriber]struct{})
			}
			h.clients[sub.project][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.project]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.project)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.project]; ok {
				for c := range clients {
					if !c.Send(msg.payload) {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.project)
				}
			}
		}
	}
}

// Register adds a client to a project stream.
func (h *Hub) Register(project string, client Subscriber) {
	h.register <- subscription{project: project, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(project string, client Subscriber) {
	h.unreg <- subscription{project: project, client: client}
}

// Broadcast sends payload to all clients subscribed to the project.
func (h *Hub) Broadcast(project string, payload []byte) {
	h.broadcast <- message{project: project, payload: payload}
}
