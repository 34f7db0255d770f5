package grpc

// ListenerRequestType tags a MapListenerRequest
type ListenerRequestType int32

const (
	RequestInit   ListenerRequestType = 0 // Stream handshake, carries only cache and id
	RequestKey    ListenerRequestType = 1 // Key-scoped (un)subscription
	RequestFilter ListenerRequestType = 2 // Filter-scoped (un)subscription
)

func (t ListenerRequestType) String() string {
	switch t {
	case RequestInit:
		return "init"
	case RequestKey:
		return "key"
	case RequestFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// MapListenerRequest is written by the client on the events stream
type MapListenerRequest struct {
	Scope     string              `msgpack:"scope"`
	Cache     string              `msgpack:"cache"`
	Format    string              `msgpack:"format"`
	UID       string              `msgpack:"uid"`
	Type      ListenerRequestType `msgpack:"type"`
	Key       []byte              `msgpack:"key,omitempty"`
	Filter    []byte              `msgpack:"filter,omitempty"`
	FilterID  int64               `msgpack:"filterId,omitempty"`
	Lite      bool                `msgpack:"lite"`
	Subscribe bool                `msgpack:"subscribe"`
	Priming   bool                `msgpack:"priming"`
}

// MapListenerResponse is read by the client on the events stream. Exactly one
// payload field is set; use Variant to switch on it.
type MapListenerResponse struct {
	Subscribed   *Subscribed      `msgpack:"subscribed,omitempty"`
	Unsubscribed *Unsubscribed    `msgpack:"unsubscribed,omitempty"`
	Event        *MapEventMessage `msgpack:"event,omitempty"`
	Error        *ErrorResponse   `msgpack:"error,omitempty"`
	Destroyed    *Destroyed       `msgpack:"destroyed,omitempty"`
	Truncated    *Truncated       `msgpack:"truncated,omitempty"`
}

// ResponseVariant is the closed set of payloads a MapListenerResponse carries:
// *Subscribed, *Unsubscribed, *MapEventMessage, *ErrorResponse, *Destroyed, *Truncated.
type ResponseVariant interface {
	isResponseVariant()
}

func (*Subscribed) isResponseVariant()      {}
func (*Unsubscribed) isResponseVariant()    {}
func (*MapEventMessage) isResponseVariant() {}
func (*ErrorResponse) isResponseVariant()   {}
func (*Destroyed) isResponseVariant()       {}
func (*Truncated) isResponseVariant()       {}

// Variant returns the populated payload, or nil for an empty response.
func (r *MapListenerResponse) Variant() ResponseVariant {
	switch {
	case r == nil:
		return nil
	case r.Subscribed != nil:
		return r.Subscribed
	case r.Unsubscribed != nil:
		return r.Unsubscribed
	case r.Event != nil:
		return r.Event
	case r.Error != nil:
		return r.Error
	case r.Destroyed != nil:
		return r.Destroyed
	case r.Truncated != nil:
		return r.Truncated
	}
	return nil
}

// Subscribed acknowledges a subscribe (or INIT) request
type Subscribed struct {
	UID      string `msgpack:"uid"`
	FilterID int64  `msgpack:"filterId,omitempty"` // Assigned for filter subscriptions
}

// Unsubscribed acknowledges an unsubscribe request
type Unsubscribed struct {
	UID string `msgpack:"uid"`
}

// ErrorResponse rejects one request
type ErrorResponse struct {
	UID     string `msgpack:"uid"`
	Code    int32  `msgpack:"code"`
	Message string `msgpack:"message"`
}

// Destroyed reports that the cache was destroyed on the cluster
type Destroyed struct {
	Cache string `msgpack:"cache"`
}

// Truncated reports that the cache was truncated on the cluster
type Truncated struct {
	Cache string `msgpack:"cache"`
}

// Map event types on the wire
const (
	EventInserted int32 = 1
	EventUpdated  int32 = 2
	EventDeleted  int32 = 3
)

// MapEventMessage is one insert/update/delete notification
type MapEventMessage struct {
	ID        int32   `msgpack:"id"`
	Key       []byte  `msgpack:"key"`
	OldValue  []byte  `msgpack:"oldValue,omitempty"`
	NewValue  []byte  `msgpack:"newValue,omitempty"`
	FilterIDs []int64 `msgpack:"filterIds,omitempty"`
	Synthetic bool    `msgpack:"synthetic"`
	Priming   bool    `msgpack:"priming"`
}

// PageRequest asks for one page of a streamed enumeration. An empty Cookie
// requests the first page.
type PageRequest struct {
	Scope  string `msgpack:"scope"`
	Cache  string `msgpack:"cache"`
	Format string `msgpack:"format"`
	Cookie []byte `msgpack:"cookie,omitempty"`
}

// PageFrame is one streamed element of a page. The first frame of every page
// carries only Cookie (empty when no page follows); later frames carry rows.
type PageFrame struct {
	Cookie []byte `msgpack:"cookie,omitempty"`
	Key    []byte `msgpack:"key,omitempty"`
	Value  []byte `msgpack:"value,omitempty"`
}
