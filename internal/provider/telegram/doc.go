// Package telegram adapts the Telegram Bot API webhook to the gateway's
// provider contract.
//
// Telegram does not sign webhook bodies. Its transport equivalent is the
// X-Telegram-Bot-Api-Secret-Token header registered with setWebhook,
// compared in constant time and failing exactly like a bad signature.
// There is no redelivery counter either, so RetryCount always reports
// zero and duplicate suppression falls to the acknowledgment-first
// pipeline.
//
// Forum-topic messages key threads as "{chat_id}/{message_thread_id}".
// Replies render runtime markdown into Telegram's HTML subset and fall
// back to plain text when the markup is rejected.
package telegram
