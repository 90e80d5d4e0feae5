// Package telegram connects warden to the Telegram Bot API through gotgbot.
//
// The module "channel.telegram" owns the bot: it builds the platform client,
// the verification engine, the update router and the maintenance jobs, and
// receives updates either by long polling or through the gateway webhook
// dispatcher (source "telegram").
//
// Lifecycle: Configure → Provision → Validate → Start → Stop, with Reload
// applying whitelist, admin user and timeout changes in place.
package telegram
