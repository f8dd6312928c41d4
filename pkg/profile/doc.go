// Package profile persists tenant credential profiles and the
// singleton settings files (default SSH key, Telegram, Cloudflare).
// The profiles document is hot-reloaded on every operation and
// rewritten atomically on mutation.
package profile
