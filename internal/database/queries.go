package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO rooms (name, external_id, owner_id, seq_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, 0, $4, $4) RETURNING id, name, external_id, owner_id, seq_id",
		params.Name,
		params.ExternalId,
		params.OwnerId,
		now,
	)

	var r Room
	err := row.Scan(
		&r.Id,
		&r.Name,
		&r.ExternalId,
		&r.OwnerId,
		&r.SeqId,
	)

	return r, err
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, external_id, owner_id, seq_id, created_at, updated_at FROM rooms "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var r Room
	err := row.Scan(
		&r.Id,
		&r.Name,
		&r.ExternalId,
		&r.OwnerId,
		&r.SeqId,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	return r, err
}

func (db *PgChatRepository) DeleteRoom(roomId int) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	return err
}

func (db *PgChatRepository) TransferOwnership(roomId, newOwnerId int) error {
	_, err := db.conn.Exec(
		"UPDATE rooms SET owner_id = $2, updated_at = $3 WHERE id = $1",
		roomId,
		newOwnerId,
		time.Now().UTC(),
	)
	return err
}

func (db *PgChatRepository) CreateSubscription(accountId, roomId int) (Subscription, error) {
	row := db.conn.QueryRow(
		"INSERT INTO subscriptions (account_id, room_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $3) RETURNING id, account_id, room_id",
		accountId,
		roomId,
		time.Now().UTC(),
	)

	var sub Subscription
	err := row.Scan(
		&sub.Id,
		&sub.AccountId,
		&sub.RoomId,
	)
	if err != nil {
		return Subscription{}, err
	}

	userRow := db.conn.QueryRow("SELECT username FROM accounts WHERE id = $1", accountId)
	if err := userRow.Scan(&sub.Username); err != nil {
		return Subscription{}, err
	}

	return sub, nil
}

func (db *PgChatRepository) DeleteSubscription(accountId, roomId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM subscriptions WHERE account_id = $1 AND room_id = $2",
		accountId,
		roomId,
	)
	return err
}

func (db *PgChatRepository) IsMember(roomId, accountId int) bool {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM subscriptions WHERE room_id = $1 AND account_id = $2",
		roomId,
		accountId,
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return false
	}

	return count > 0
}

func (db *PgChatRepository) MembersOf(roomId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT a.id, a.username FROM accounts a "+
			"JOIN subscriptions s ON s.account_id = a.id "+
			"WHERE s.room_id = $1",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgChatRepository) RoomsOf(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.name, r.external_id, r.owner_id, r.seq_id FROM rooms r "+
			"JOIN subscriptions s ON s.room_id = r.id "+
			"WHERE s.account_id = $1",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.Id, &r.Name, &r.ExternalId, &r.OwnerId, &r.SeqId); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (db *PgChatRepository) CreateMessage(msg Message) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO messages (seq_id, room_id, account_id, kind, content, attachments, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7)",
		msg.SeqId,
		msg.RoomId,
		msg.UserId,
		msg.Kind,
		msg.Content,
		pq.Array(msg.Attachments),
		msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"UPDATE rooms SET seq_id = $2, updated_at = $3 WHERE id = $1 AND seq_id < $2",
		msg.RoomId,
		msg.SeqId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgChatRepository) HighestSeqId(roomId int) (int64, error) {
	row := db.conn.QueryRow(
		"SELECT COALESCE(MAX(seq_id), 0) FROM messages WHERE room_id = $1",
		roomId,
	)

	var seqId int64
	if err := row.Scan(&seqId); err != nil && err != sql.ErrNoRows {
		return 0, err
	}

	return seqId, nil
}

func (db *PgChatRepository) GetMessages(roomId int, since, before int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if before <= 0 {
		before = int64(^uint64(0) >> 1)
	}

	rows, err := db.conn.Query(
		"SELECT id, seq_id, room_id, account_id, kind, content, attachments, created_at FROM messages "+
			"WHERE room_id = $1 AND seq_id > $2 AND seq_id < $3 "+
			"ORDER BY seq_id DESC LIMIT $4",
		roomId,
		since,
		before,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.SeqId,
			&m.RoomId,
			&m.UserId,
			&m.Kind,
			&m.Content,
			pq.Array(&m.Attachments),
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
