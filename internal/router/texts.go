package router

const (
	userUsage = "🤖 Anonymous relay bot\n\n" +
		"Send any message and it will be forwarded to the administrator.\n\n" +
		"Commands:\n" +
		"/req <text> - submit a request\n" +
		"/status - show bot status\n" +
		"/help - show this help\n\n" +
		"Example: /req I need help with a problem"

	adminUsage = "\n\nAdministrator:\n" +
		"Reply to a forwarded message to answer its sender.\n" +
		"/ban - reply to a forwarded message to ban its sender\n" +
		"/unban <user id> - lift a ban\n" +
		"/bans - list banned users"

	unknownCommandText = "Unknown command.\n\n"

	requestUsage    = "❌ Please add your request after /req, for example: /req I need help"
	banUsage        = "Reply to a forwarded message with /ban to ban its sender."
	unbanUsage      = "Usage: /unban <numeric user id>"
	banAdminUsage   = "The administrator cannot be banned."
	slowDownText    = "⚠️ Please slow down."
	requestSentText = "✅ Your request was sent to the administrator. Please wait for a response."

	runningText = "✅ Bot is running"

	expiredText        = "⚠️ Could not find the user for this message (it may have expired)."
	deliveredText      = "✅ Message delivered"
	deliveryFailedText = "❌ Delivery failed, the user may have blocked the bot"
	replyHeader        = "💬 Reply from the administrator:\n\n"

	noBansText = "No banned users."

	ackAlreadyHandled = "This action was already handled"
	ackExpired        = "❌ Request expired"
	ackUnknownAction  = "❌ Unknown action"
	ackNotAuthorized  = "❌ Not authorized"
	ackDone           = "✅ Done"
	ackDoneNoEdit     = "Done, but the message could not be updated"
	ackNotifyFailed   = "❌ Failed to notify the user"

	timeLayout = "2006-01-02 15:04:05"
	separator  = "───────────────"
)
