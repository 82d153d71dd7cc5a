package realtime

import (
	"slices"
)

// Client is one registered connection. Its fields are guarded by the hub
// mutex; the send channel is closed by the hub on unregister.
type Client struct {
	id      string
	send    chan []byte
	topics  map[Topic]struct{}
	filters Filters
	closed  bool
}

func newClient(id string, buffer int) *Client {
	return &Client{
		id:     id,
		send:   make(chan []byte, buffer),
		topics: map[Topic]struct{}{TopicAll: {}},
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send yields encoded frames queued for the connection.
func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) wants(topic Topic) bool {
	if _, ok := c.topics[TopicAll]; ok {
		return true
	}
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) topicList() []Topic {
	out := make([]Topic, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// enqueue never blocks; a full buffer drops the frame.
func (c *Client) enqueue(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
