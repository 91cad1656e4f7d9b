// Package slack adapts the Slack Events API to the gateway's provider
// contract.
//
// Verification uses the app signing secret over Slack's header names
// (X-Slack-Signature, X-Slack-Request-Timestamp); the freshness window
// comes from gateway configuration rather than Slack's fixed five
// minutes. Redeliveries are detected through X-Slack-Retry-Num. The
// url_verification handshake is answered inline so the endpoint can be
// enabled from the Slack app console.
//
// Normalization accepts message and app_mention callbacks, drops bot
// echoes and message subtypes, and keys threads as
// "{channel}/{thread_ts}". Replies go out through chat.postMessage and
// stay in-thread when the inbound message was threaded.
package slack
