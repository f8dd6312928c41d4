// Package notify implements the outbound side-effects of task
// completion: Telegram messages and Cloudflare DNS upserts. Both are
// best-effort and never change a task's terminal status.
package notify
