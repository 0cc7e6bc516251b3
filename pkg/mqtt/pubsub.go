// Package mqtt wraps the paho client with topic-prefix routing and
// reference-counted subscriptions.
package mqtt

import (
	"net/url"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler is the callback when a message is received. topic comes with
// the queue's prefix already stripped.
type Handler func(topic string, payload []byte)

// ConnectHandler handles connect/disconnect events.
type ConnectHandler func(*Queue)

// Queue wraps an MQTT client. All topics passed to Sub and Pub are
// relative to TopicPrefix.
type Queue struct {
	Client       paho.Client
	TopicPrefix  string
	OnConnect    ConnectHandler
	OnDisconnect ConnectHandler

	subsLock sync.RWMutex
	subs     map[string][]*Subscription
	wildcard map[string][]*Subscription
}

// Subscription is one subscribed handler. The broker-side subscription
// is shared by all Subscriptions on the same topic and dropped when
// the last one closes.
type Subscription struct {
	Token paho.Token

	queue    *Queue
	topic    string
	wildcard bool
	handler  Handler
}

// MatchTopic matches a topic against a subscription pattern with the
// usual + and # wildcards. Unlike a plain prefix check, a pattern
// without a trailing # must consume the whole topic.
func MatchTopic(topic, pattern string) bool {
	t, p := strings.Split(topic, "/"), strings.Split(pattern, "/")
	for i, token := range p {
		if token == "#" && i+1 == len(p) {
			return true
		}
		if i >= len(t) {
			return false
		}
		if token != "+" && token != t[i] {
			return false
		}
	}
	return len(t) == len(p)
}

// ClientOptionsFromURL builds ClientOptions from a broker URL. The URL
// path becomes the topic prefix, credentials map to username/password
// and a client-id query parameter overrides the client identity.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	server := u.Scheme
	if server == "" || server == "mqtt" {
		server = "tcp"
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, topicPrefix, nil
}

// NewQueue creates a Queue over the given client options.
func NewQueue(options *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix}
	options.SetOnConnectHandler(q.onConnect)
	options.SetConnectionLostHandler(q.onConnectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueFromURL creates a Queue from a broker URL. When the URL
// carries no client-id, a stable machine-derived identity is used.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(ClientID("sport"))
	}
	return NewQueue(opts, topicPrefix), nil
}

// Connect connects the client.
func (q *Queue) Connect() paho.Token {
	return q.Client.Connect()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(0)
	return nil
}

// Sub subscribes a handler to a topic. The first handler on a topic
// subscribes at the broker and sets Token on the returned
// Subscription.
func (q *Queue) Sub(topic string, handler Handler) *Subscription {
	sub := &Subscription{
		queue:    q,
		topic:    topic,
		handler:  handler,
		wildcard: strings.Contains(topic, "+") || strings.HasSuffix(topic, "#"),
	}
	q.subsLock.Lock()
	subs := &q.subs
	if sub.wildcard {
		subs = &q.wildcard
	}
	if *subs == nil {
		*subs = make(map[string][]*Subscription)
	}
	first := len((*subs)[topic]) == 0
	(*subs)[topic] = append((*subs)[topic], sub)
	q.subsLock.Unlock()

	if first {
		glog.V(2).Infof("SUB %q", q.TopicPrefix+topic)
		sub.Token = q.Client.Subscribe(q.TopicPrefix+topic, 0, q.dispatch)
	}
	return sub
}

// Pub publishes to a topic with QoS 0.
func (q *Queue) Pub(topic string, payload []byte) paho.Token {
	return q.PubWith(topic, payload, 0, false)
}

// PubRetained publishes a retained message with QoS 0.
func (q *Queue) PubRetained(topic string, payload []byte) paho.Token {
	return q.PubWith(topic, payload, 0, true)
}

// PubWith publishes with explicit QoS and retain settings.
func (q *Queue) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	return q.Client.Publish(q.TopicPrefix+topic, qos, retain, payload)
}

// Resubscribe restores every broker-side subscription. It runs from
// the connect handler so subscriptions survive a reconnect.
func (q *Queue) Resubscribe() paho.Token {
	filters := make(map[string]byte)
	q.subsLock.RLock()
	for topic := range q.subs {
		filters[q.TopicPrefix+topic] = 0
	}
	for topic := range q.wildcard {
		filters[q.TopicPrefix+topic] = 0
	}
	q.subsLock.RUnlock()
	if len(filters) == 0 {
		return &paho.DummyToken{}
	}
	if glog.V(2) {
		for key := range filters {
			glog.Infof("SUB %q", key)
		}
	}
	return q.Client.SubscribeMultiple(filters, q.dispatch)
}

func (q *Queue) onConnect(paho.Client) {
	glog.Info("connected")
	q.Resubscribe()
	if h := q.OnConnect; h != nil {
		h(q)
	}
}

func (q *Queue) onConnectionLost(_ paho.Client, err error) {
	glog.Warningf("connection lost: %v", err)
	if h := q.OnDisconnect; h != nil {
		h(q)
	}
}

func (q *Queue) dispatch(_ paho.Client, msg paho.Message) {
	q.deliver(msg.Topic(), msg.Payload())
}

// deliver routes one received message. topic is the full broker topic
// including the prefix.
func (q *Queue) deliver(topic string, payload []byte) {
	if !strings.HasPrefix(topic, q.TopicPrefix) {
		return
	}
	glog.V(2).Infof("RCV %q", topic)
	topic = topic[len(q.TopicPrefix):]
	var handlers []Handler
	q.subsLock.RLock()
	for _, sub := range q.subs[topic] {
		handlers = append(handlers, sub.handler)
	}
	for pattern, subs := range q.wildcard {
		if MatchTopic(topic, pattern) {
			for _, sub := range subs {
				handlers = append(handlers, sub.handler)
			}
		}
	}
	q.subsLock.RUnlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

// Close drops the handler and unsubscribes at the broker when it was
// the topic's last one.
func (s *Subscription) Close() error {
	q := s.queue
	var unsub bool
	q.subsLock.Lock()
	subs := q.subs
	if s.wildcard {
		subs = q.wildcard
	}
	if lst, ok := subs[s.topic]; ok {
		for i, sub := range lst {
			if sub == s {
				lst = append(lst[:i], lst[i+1:]...)
				break
			}
		}
		if len(lst) == 0 {
			delete(subs, s.topic)
			unsub = true
		} else {
			subs[s.topic] = lst
		}
	}
	q.subsLock.Unlock()

	if unsub {
		glog.V(2).Infof("UNSUB %q", q.TopicPrefix+s.topic)
		token := q.Client.Unsubscribe(q.TopicPrefix + s.topic)
		token.Wait()
		return token.Error()
	}
	return nil
}
