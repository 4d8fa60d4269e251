package mq

// Routing keys published on the events exchange.
const (
	RoutingEmailSynced        = "email.synced"
	RoutingEmailReplySent     = "email.reply_sent"
	RoutingTaskBulkCreated    = "task.bulk_created"
	RoutingExpenseCreated     = "expense.created"
	RoutingMeetingTranscribed = "meeting.transcribed"
)
