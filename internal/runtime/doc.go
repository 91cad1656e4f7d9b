// Package runtime is the gateway's proxy to the remote agent runtime.
//
// The runtime is an opaque, stateful collaborator reached over
// HTTP/JSON custom-method verbs:
//
//	POST {endpoint}:query           one conversational turn
//	POST {endpoint}:preloadMemories hydrate session working memory
//	POST {endpoint}:commitMemories  persist a completed turn durably
//
// Each call is bounded by a timeout. Timeouts and backend errors come
// back as *UnavailableError so callers can acknowledge the transport,
// skip the memory commit, and record the failure without retrying —
// a retry here would duplicate a runtime invocation, because the
// inbound transport already owns redelivery.
package runtime
