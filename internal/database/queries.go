package database

// History queries
const (
	InsertHistoryQuery = `
		INSERT OR IGNORE INTO history (
			owner, message_id, sender, recipient, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	SelectHistoryByOwnerQuery = `
		SELECT message_id, sender, recipient, payload, created_at
		FROM history
		WHERE owner = ?
		ORDER BY id ASC
	`

	DeleteHistoryByMessageIDQuery = `
		DELETE FROM history
		WHERE message_id = ?
	`
)

// Pending queue queries
const (
	InsertPendingQuery = `
		INSERT OR IGNORE INTO pending (
			recipient, message_id, sender, payload, created_at
		) VALUES (?, ?, ?, ?, ?)
	`

	SelectPendingByRecipientQuery = `
		SELECT message_id, sender, recipient, payload, created_at
		FROM pending
		WHERE recipient = ?
		ORDER BY id ASC
	`

	DeletePendingByRecipientQuery = `
		DELETE FROM pending
		WHERE recipient = ?
	`

	DeletePendingByMessageIDQuery = `
		DELETE FROM pending
		WHERE message_id = ?
	`
)
