// bus.go
package bus

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"mcal-go/errcode"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Wildcard tokens accepted in subscription topics.
const (
	SingleLevel = "+"
	MultiLevel  = "#"
)

// Topic is a sequence of comparable tokens (strings or integers).
type Topic []any

// T builds a topic and panics on tokens that cannot key the trie.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		switch tok.(type) {
		case string, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, bool:
		default:
			panic("bus: unsupported topic token type")
		}
	}
	return Topic(tokens)
}

// String renders a topic as slash-separated text.
func (t Topic) String() string {
	var b []byte
	for i, tok := range t {
		if i > 0 {
			b = append(b, '/')
		}
		switch v := tok.(type) {
		case string:
			b = append(b, v...)
		case int:
			b = strconv.AppendInt(b, int64(v), 10)
		case int8:
			b = strconv.AppendInt(b, int64(v), 10)
		case int16:
			b = strconv.AppendInt(b, int64(v), 10)
		case int32:
			b = strconv.AppendInt(b, int64(v), 10)
		case int64:
			b = strconv.AppendInt(b, v, 10)
		case uint:
			b = strconv.AppendUint(b, uint64(v), 10)
		case uint8:
			b = strconv.AppendUint(b, uint64(v), 10)
		case uint16:
			b = strconv.AppendUint(b, uint64(v), 10)
		case uint32:
			b = strconv.AppendUint(b, uint64(v), 10)
		case uint64:
			b = strconv.AppendUint(b, v, 10)
		case bool:
			b = strconv.AppendBool(b, v)
		default:
			b = append(b, '?')
		}
	}
	return string(b)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
	once  sync.Once
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

func (s *Subscription) deliver(msg *Message) {
	select {
	case s.ch <- msg:
	default:
		// drop oldest if queue full
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu     sync.Mutex
	root   *node
	qLen   int
	nextID atomic.Uint32
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// addSubscription inserts a subscription into the trie and replays
// every retained message its topic matches.
func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	replayRetained(b.root, topic, 0, sub)
}

func replayRetained(n *node, pattern Topic, i int, sub *Subscription) {
	if i == len(pattern) {
		if n.retained != nil {
			sub.deliver(n.retained)
		}
		return
	}
	switch pattern[i] {
	case MultiLevel:
		replaySubtree(n, sub)
	case SingleLevel:
		for tok, c := range n.children {
			if tok == SingleLevel || tok == MultiLevel {
				continue
			}
			replayRetained(c, pattern, i+1, sub)
		}
	default:
		if c := n.child(pattern[i], false); c != nil {
			replayRetained(c, pattern, i+1, sub)
		}
	}
}

func replaySubtree(n *node, sub *Subscription) {
	if n.retained != nil {
		sub.deliver(n.retained)
	}
	for _, c := range n.children {
		replaySubtree(c, sub)
	}
}

// Publish delivers a message to all subscribers whose topic matches.
// A retained message with a nil payload clears the retained slot.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	matchSubs(b.root, msg.Topic, 0, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		n = n.child(tok, msg.Payload != nil)
		if n == nil {
			return
		}
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

func matchSubs(n *node, topic Topic, i int, msg *Message) {
	if h := n.child(MultiLevel, false); h != nil {
		for _, s := range h.subs {
			s.deliver(msg)
		}
	}
	if i == len(topic) {
		for _, s := range n.subs {
			s.deliver(msg)
		}
		return
	}
	if c := n.child(topic[i], false); c != nil {
		matchSubs(c, topic, i+1, msg)
	}
	if c := n.child(SingleLevel, false); c != nil {
		matchSubs(c, topic, i+1, msg)
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range topic {
		child := n.child(t, false)
		if child == nil {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{
		bus: b,
		id:  id,
	}
}

// ID returns the name the connection was created with.
func (c *Connection) ID() string { return c.id }

// NewMessage is a convenience constructor.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(topic, sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// -----------------------------------------------------------------------------
// Request / Reply
// -----------------------------------------------------------------------------

// Reply answers a request on its ReplyTo topic. Requests without one are
// ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if req == nil || len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}

// Request assigns a private reply topic, subscribes to it and publishes req.
// The caller owns the returned subscription.
func (c *Connection) Request(req *Message) *Subscription {
	id := c.bus.nextID.Add(1)
	req.ReplyTo = T("_reply", c.id, int(id))
	sub := c.Subscribe(req.ReplyTo)
	c.Publish(req)
	return sub
}

// RequestWait publishes req and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, req *Message) (*Message, error) {
	sub := c.Request(req)
	defer c.Unsubscribe(sub)
	select {
	case msg, ok := <-sub.Channel():
		if !ok {
			return nil, errcode.Error
		}
		return msg, nil
	case <-ctx.Done():
		return nil, errcode.Timeout
	}
}
