// Package bridge implements the conversation policy shared by the direct-push
// and broker-topic endpoints.
//
// A Conversation owns one responder and walks Opening → Open → Closing →
// Closed. The transport is reached only through an Adapter whose Style
// selects the framing:
//
//	Push    greeting triple on open, reply + "---" per message,
//	        "bye" closes the connection with 1000 and the farewell text
//	PubSub  no greeting, exactly one published reply per request,
//	        "bye" is answered with the farewell text
//
// Inbound handling is serialized per conversation, so a responder is never
// used concurrently. A responder panic or a failed send closes only that
// connection with 1011 and the apology text; counters are touched exactly
// once per transition.
package bridge
