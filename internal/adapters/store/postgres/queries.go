package postgres

const querySchema = `
CREATE TABLE IF NOT EXISTS channels (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('text', 'voice'))
);
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL UNIQUE,
	role         TEXT NOT NULL DEFAULT 'member',
	is_online    BOOLEAN NOT NULL DEFAULT FALSE,
	last_active  TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	author_id  TEXT NOT NULL,
	author     TEXT NOT NULL,
	target_id  TEXT,
	target     TEXT,
	text       TEXT NOT NULL,
	type       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at DESC, id DESC);
`

const queryChannelByID = `SELECT id, name, type FROM channels WHERE id = $1`

const queryUserByID = `SELECT id, display_name, role FROM users WHERE id = $1`

const queryInsertMessage = `
	INSERT INTO messages (id, room_id, author_id, author, target_id, target, text, type, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const queryRecentMessages = `
	SELECT id, room_id, author_id, author, target_id, target, text, type, created_at
	FROM messages
	WHERE room_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
`

const querySetStatus = `UPDATE users SET is_online = $2, last_active = $3 WHERE id = $1`
