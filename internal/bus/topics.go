package bus

// Topic names a message stream on the bus.
type Topic string

const (
	TopicUserLookupRequest       Topic = "user.lookup.request"
	TopicUserLookupResponse      Topic = "user.lookup.response"
	TopicProductLookupRequest    Topic = "product.lookup.request"
	TopicProductLookupResponse   Topic = "product.lookup.response"
	TopicStockValidationRequest  Topic = "stock.validation.request"
	TopicStockValidationResponse Topic = "stock.validation.response"
	TopicCartLookupRequest       Topic = "cart.lookup.request"
	TopicCartLookupResponse      Topic = "cart.lookup.response"
	TopicCartClearRequest        Topic = "cart.clear.request"
	TopicCartClearResponse       Topic = "cart.clear.response"

	// TopicOrderCreated is a broadcast with no reply.
	TopicOrderCreated Topic = "order.created"
)

// replyTopics maps every request topic to the topic its responder answers on.
var replyTopics = map[Topic]Topic{
	TopicUserLookupRequest:      TopicUserLookupResponse,
	TopicProductLookupRequest:   TopicProductLookupResponse,
	TopicStockValidationRequest: TopicStockValidationResponse,
	TopicCartLookupRequest:      TopicCartLookupResponse,
	TopicCartClearRequest:       TopicCartClearResponse,
}

// ReplyTopic returns the reply topic for a request topic. ok is false for
// broadcasts and unknown topics.
func ReplyTopic(request Topic) (reply Topic, ok bool) {
	reply, ok = replyTopics[request]
	return reply, ok
}

// RequestTopics lists every topic that expects a correlated reply.
func RequestTopics() []Topic {
	return []Topic{
		TopicUserLookupRequest,
		TopicProductLookupRequest,
		TopicStockValidationRequest,
		TopicCartLookupRequest,
		TopicCartClearRequest,
	}
}
