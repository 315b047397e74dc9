package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken indicates another account already uses the email.
	ErrEmailTaken = errors.New("user already exists with this email address")
	// ErrUsernameTaken indicates another account already uses the username.
	ErrUsernameTaken = errors.New("username is already taken")
	// ErrPostNotFound indicates the post does not exist.
	ErrPostNotFound = errors.New("post not found")
	// ErrPostNotOwned indicates the caller is not the post author.
	ErrPostNotOwned = errors.New("cannot delete post not authored by this user")
	// ErrSelfFollow indicates a user tried to follow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
)

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool (25 connections)
	writeConn *sql.DB // Dedicated write connection (1 connection)
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit to 1 open connection for writes (SQLite limitation)
	// but allow multiple readers in WAL mode
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Create dedicated write connection: exactly 1 connection, no pooling
	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0) // Never expire

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	db := &DB{
		conn:      conn,
		writeConn: writeConn,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func applyPragmas(conn *sql.DB) error {
	// Enable WAL mode for better concurrent access
	// WAL allows multiple readers and one writer at the same time
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to 5 seconds
	// This makes SQLite wait and retry instead of immediately failing with SQLITE_BUSY
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign keys (SQLite has them disabled by default)
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Optimize for concurrency
	if _, err := conn.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return nil
}

// Close closes the database connections
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- User table
CREATE TABLE IF NOT EXISTS User (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	gender TEXT NOT NULL DEFAULT '',
	profile_picture TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

-- Follow edges (follower -> followee)
CREATE TABLE IF NOT EXISTS Follow (
	follower_id TEXT NOT NULL,
	followee_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (follower_id, followee_id),
	FOREIGN KEY (follower_id) REFERENCES User(id) ON DELETE CASCADE,
	FOREIGN KEY (followee_id) REFERENCES User(id) ON DELETE CASCADE
);

-- Post table
CREATE TABLE IF NOT EXISTS Post (
	id TEXT PRIMARY KEY,
	author_id TEXT NOT NULL,
	caption TEXT NOT NULL,
	image TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	FOREIGN KEY (author_id) REFERENCES User(id) ON DELETE CASCADE
);

-- Like table
CREATE TABLE IF NOT EXISTS PostLike (
	post_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (post_id, user_id),
	FOREIGN KEY (post_id) REFERENCES Post(id) ON DELETE CASCADE,
	FOREIGN KEY (user_id) REFERENCES User(id) ON DELETE CASCADE
);

-- Bookmark table
CREATE TABLE IF NOT EXISTS Bookmark (
	user_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, post_id),
	FOREIGN KEY (user_id) REFERENCES User(id) ON DELETE CASCADE,
	FOREIGN KEY (post_id) REFERENCES Post(id) ON DELETE CASCADE
);

-- Comment table
CREATE TABLE IF NOT EXISTS Comment (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	author_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (post_id) REFERENCES Post(id) ON DELETE CASCADE,
	FOREIGN KEY (author_id) REFERENCES User(id) ON DELETE CASCADE
);

-- Conversation table (one row per user pair, canonical order)
CREATE TABLE IF NOT EXISTS Conversation (
	id TEXT PRIMARY KEY,
	user_a TEXT NOT NULL,
	user_b TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (user_a, user_b),
	FOREIGN KEY (user_a) REFERENCES User(id) ON DELETE CASCADE,
	FOREIGN KEY (user_b) REFERENCES User(id) ON DELETE CASCADE
);

-- Message table
CREATE TABLE IF NOT EXISTS Message (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES Conversation(id) ON DELETE CASCADE,
	FOREIGN KEY (sender_id) REFERENCES User(id) ON DELETE CASCADE,
	FOREIGN KEY (receiver_id) REFERENCES User(id) ON DELETE CASCADE
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_follow_followee ON Follow(followee_id);
CREATE INDEX IF NOT EXISTS idx_post_author ON Post(author_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_post_created ON Post(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_comment_post ON Comment(post_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_message_conversation ON Message(conversation_id, created_at);
`

	_, err := db.writeConn.Exec(schema)
	return err
}

// User represents a registered account
type User struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	PasswordHash   string `json:"-"`
	Name           string `json:"name"`
	Bio            string `json:"bio"`
	Gender         string `json:"gender"`
	ProfilePicture string `json:"profilePicture"`
	CreatedAt      int64  `json:"createdAt"` // Unix timestamp in milliseconds
}

// UserSummary is the author shape embedded in posts, comments and
// notification payloads.
type UserSummary struct {
	ID             string `json:"_id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
}

// Summary converts a full user to its embeddable form
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
	}
}

// Post represents a post with author, like set and comments attached
type Post struct {
	ID        string      `json:"_id"`
	Author    UserSummary `json:"author"`
	Caption   string      `json:"caption"`
	Image     string      `json:"image"`
	Likes     []string    `json:"likes"`
	Comments  []*Comment  `json:"comments"`
	CreatedAt int64       `json:"createdAt"` // Unix timestamp in milliseconds
}

// Comment represents a single comment on a post
type Comment struct {
	ID        string      `json:"_id"`
	PostID    string      `json:"post"`
	Author    UserSummary `json:"author"`
	Text      string      `json:"text"`
	CreatedAt int64       `json:"createdAt"` // Unix timestamp in milliseconds
}

// Message represents a direct message between two users
type Message struct {
	ID             string `json:"_id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Body           string `json:"message"`
	CreatedAt      int64  `json:"createdAt"` // Unix timestamp in milliseconds
}

// nowMillis returns current time as Unix timestamp in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// ===== User Methods =====

// CreateUser inserts a new account with an already-hashed password
func (db *DB) CreateUser(username, email, passwordHash string) (*User, error) {
	if _, err := db.GetUserByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := db.GetUserByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    nowMillis(),
	}

	_, err := db.writeConn.Exec(`
		INSERT INTO User (id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

const userColumns = `id, username, email, password_hash, name, bio, gender, profile_picture, created_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Name, &u.Bio, &u.Gender, &u.ProfilePicture, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(id string) (*User, error) {
	return scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM User WHERE id = ?`, id))
}

// GetUserByEmail retrieves a user by email for login validation
func (db *DB) GetUserByEmail(email string) (*User, error) {
	return scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM User WHERE email = ?`, email))
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(username string) (*User, error) {
	return scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM User WHERE username = ?`, username))
}

// UpdateProfile applies the non-empty fields to the user's profile and
// returns the updated user
func (db *DB) UpdateProfile(userID, name, bio, gender, profilePicture string) (*User, error) {
	user, err := db.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	if name != "" {
		user.Name = name
	}
	if bio != "" {
		user.Bio = bio
	}
	if gender != "" {
		user.Gender = gender
	}
	if profilePicture != "" {
		user.ProfilePicture = profilePicture
	}

	_, err = db.writeConn.Exec(`
		UPDATE User SET name = ?, bio = ?, gender = ?, profile_picture = ? WHERE id = ?
	`, user.Name, user.Bio, user.Gender, user.ProfilePicture, user.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return user, nil
}

// SearchUsers returns users whose username or name contains the query,
// case-insensitively
func (db *DB) SearchUsers(query string) ([]UserSummary, error) {
	pattern := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, username, name, profile_picture
		FROM User
		WHERE username LIKE ? OR name LIKE ?
		ORDER BY username ASC
	`, pattern, pattern)

	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return scanUserSummaries(rows)
}

// SuggestedUsers returns all users except the given one, newest first
func (db *DB) SuggestedUsers(excludeUserID string) ([]UserSummary, error) {
	rows, err := db.conn.Query(`
		SELECT id, username, name, profile_picture
		FROM User
		WHERE id != ?
		ORDER BY created_at DESC
	`, excludeUserID)

	if err != nil {
		return nil, fmt.Errorf("failed to list suggested users: %w", err)
	}
	defer rows.Close()

	return scanUserSummaries(rows)
}

func scanUserSummaries(rows *sql.Rows) ([]UserSummary, error) {
	users := []UserSummary{}
	for rows.Next() {
		var u UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.ProfilePicture); err != nil {
			return nil, fmt.Errorf("failed to scan user summary: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ===== Follow Methods =====

// Follow records follower -> followee. Following twice is a no-op.
func (db *DB) Follow(followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	if _, err := db.GetUserByID(followeeID); err != nil {
		return err
	}

	_, err := db.writeConn.Exec(`
		INSERT OR IGNORE INTO Follow (follower_id, followee_id, created_at)
		VALUES (?, ?, ?)
	`, followerID, followeeID, nowMillis())

	if err != nil {
		return fmt.Errorf("failed to follow: %w", err)
	}
	return nil
}

// Unfollow removes the follower -> followee edge if present
func (db *DB) Unfollow(followerID, followeeID string) error {
	_, err := db.writeConn.Exec(`
		DELETE FROM Follow WHERE follower_id = ? AND followee_id = ?
	`, followerID, followeeID)

	if err != nil {
		return fmt.Errorf("failed to unfollow: %w", err)
	}
	return nil
}

// IsFollowing reports whether follower currently follows followee
func (db *DB) IsFollowing(followerID, followeeID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM Follow WHERE follower_id = ? AND followee_id = ?)
	`, followerID, followeeID).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check follow: %w", err)
	}
	return exists, nil
}

// Followers returns the IDs of users following userID
func (db *DB) Followers(userID string) ([]string, error) {
	return db.followEdges(`SELECT follower_id FROM Follow WHERE followee_id = ? ORDER BY created_at`, userID)
}

// Followings returns the IDs of users userID follows
func (db *DB) Followings(userID string) ([]string, error) {
	return db.followEdges(`SELECT followee_id FROM Follow WHERE follower_id = ? ORDER BY created_at`, userID)
}

func (db *DB) followEdges(query, userID string) ([]string, error) {
	rows, err := db.conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow edges: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan follow edge: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ===== Post Methods =====

// CreatePost creates a new post. The image is an opaque URL; media storage
// is outside this server.
func (db *DB) CreatePost(authorID, caption, image string) (*Post, error) {
	author, err := db.GetUserByID(authorID)
	if err != nil {
		return nil, err
	}

	post := &Post{
		ID:        uuid.NewString(),
		Author:    author.Summary(),
		Caption:   caption,
		Image:     image,
		Likes:     []string{},
		Comments:  []*Comment{},
		CreatedAt: nowMillis(),
	}

	_, err = db.writeConn.Exec(`
		INSERT INTO Post (id, author_id, caption, image, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, post.ID, authorID, post.Caption, post.Image, post.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return post, nil
}

const postQuery = `
	SELECT p.id, p.caption, p.image, p.created_at,
	       u.id, u.username, u.name, u.profile_picture
	FROM Post p
	INNER JOIN User u ON u.id = p.author_id`

// GetPost returns a single post with likes and comments attached
func (db *DB) GetPost(postID string) (*Post, error) {
	rows, err := db.conn.Query(postQuery+` WHERE p.id = ?`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	posts, err := db.collectPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrPostNotFound
	}
	return posts[0], nil
}

// FeedPosts returns posts authored by the user or anyone they follow,
// newest first
func (db *DB) FeedPosts(userID string) ([]*Post, error) {
	rows, err := db.conn.Query(postQuery+`
		WHERE p.author_id = ?
		   OR p.author_id IN (SELECT followee_id FROM Follow WHERE follower_id = ?)
		ORDER BY p.created_at DESC
	`, userID, userID)

	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	return db.collectPosts(rows)
}

// ExplorePosts returns posts authored by anyone except the user, newest
// first
func (db *DB) ExplorePosts(userID string) ([]*Post, error) {
	rows, err := db.conn.Query(postQuery+`
		WHERE p.author_id != ?
		ORDER BY p.created_at DESC
	`, userID)

	if err != nil {
		return nil, fmt.Errorf("failed to load explore posts: %w", err)
	}
	return db.collectPosts(rows)
}

// PostsByAuthor returns the author's own posts, newest first
func (db *DB) PostsByAuthor(authorID string) ([]*Post, error) {
	rows, err := db.conn.Query(postQuery+`
		WHERE p.author_id = ?
		ORDER BY p.created_at DESC
	`, authorID)

	if err != nil {
		return nil, fmt.Errorf("failed to load user posts: %w", err)
	}
	return db.collectPosts(rows)
}

// collectPosts scans post rows and attaches likes and comments
func (db *DB) collectPosts(rows *sql.Rows) ([]*Post, error) {
	defer rows.Close()

	posts := []*Post{}
	for rows.Next() {
		p := &Post{Likes: []string{}, Comments: []*Comment{}}
		err := rows.Scan(
			&p.ID,
			&p.Caption,
			&p.Image,
			&p.CreatedAt,
			&p.Author.ID,
			&p.Author.Username,
			&p.Author.Name,
			&p.Author.ProfilePicture,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range posts {
		likes, err := db.PostLikes(p.ID)
		if err != nil {
			return nil, err
		}
		p.Likes = likes

		comments, err := db.CommentsForPost(p.ID)
		if err != nil {
			return nil, err
		}
		p.Comments = comments
	}

	return posts, nil
}

// PostAuthorID returns the author of a post
func (db *DB) PostAuthorID(postID string) (string, error) {
	var authorID string
	err := db.conn.QueryRow(`SELECT author_id FROM Post WHERE id = ?`, postID).Scan(&authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPostNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get post author: %w", err)
	}
	return authorID, nil
}

// DeletePost removes a post along with its comments, likes and bookmarks.
// Only the author may delete it.
func (db *DB) DeletePost(postID, authorID string) error {
	owner, err := db.PostAuthorID(postID)
	if err != nil {
		return err
	}
	if owner != authorID {
		return ErrPostNotOwned
	}

	// Likes, bookmarks and comments go with the post via CASCADE
	_, err = db.writeConn.Exec(`DELETE FROM Post WHERE id = ?`, postID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// ===== Like and Bookmark Methods =====

// LikePost records a like. Liking twice is a no-op.
func (db *DB) LikePost(postID, userID string) error {
	if _, err := db.PostAuthorID(postID); err != nil {
		return err
	}

	_, err := db.writeConn.Exec(`
		INSERT OR IGNORE INTO PostLike (post_id, user_id, created_at)
		VALUES (?, ?, ?)
	`, postID, userID, nowMillis())

	if err != nil {
		return fmt.Errorf("failed to like post: %w", err)
	}
	return nil
}

// UnlikePost removes a like if present
func (db *DB) UnlikePost(postID, userID string) error {
	if _, err := db.PostAuthorID(postID); err != nil {
		return err
	}

	_, err := db.writeConn.Exec(`
		DELETE FROM PostLike WHERE post_id = ? AND user_id = ?
	`, postID, userID)

	if err != nil {
		return fmt.Errorf("failed to unlike post: %w", err)
	}
	return nil
}

// PostLikes returns the IDs of users who liked the post
func (db *DB) PostLikes(postID string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT user_id FROM PostLike WHERE post_id = ? ORDER BY created_at
	`, postID)

	if err != nil {
		return nil, fmt.Errorf("failed to list likes: %w", err)
	}
	defer rows.Close()

	likes := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		likes = append(likes, id)
	}
	return likes, rows.Err()
}

// ToggleBookmark saves the post for the user, or removes it when already
// saved. Returns true when the post ended up bookmarked.
func (db *DB) ToggleBookmark(userID, postID string) (bool, error) {
	if _, err := db.PostAuthorID(postID); err != nil {
		return false, err
	}

	result, err := db.writeConn.Exec(`
		DELETE FROM Bookmark WHERE user_id = ? AND post_id = ?
	`, userID, postID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle bookmark: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to toggle bookmark: %w", err)
	}
	if removed > 0 {
		return false, nil
	}

	_, err = db.writeConn.Exec(`
		INSERT INTO Bookmark (user_id, post_id, created_at)
		VALUES (?, ?, ?)
	`, userID, postID, nowMillis())

	if err != nil {
		return false, fmt.Errorf("failed to toggle bookmark: %w", err)
	}
	return true, nil
}

// Bookmarks returns the user's saved posts, most recently saved first
func (db *DB) Bookmarks(userID string) ([]*Post, error) {
	rows, err := db.conn.Query(postQuery+`
		INNER JOIN Bookmark b ON b.post_id = p.id
		WHERE b.user_id = ?
		ORDER BY b.created_at DESC
	`, userID)

	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return db.collectPosts(rows)
}

// ===== Comment Methods =====

// CreateComment adds a comment to a post
func (db *DB) CreateComment(postID, authorID, text string) (*Comment, error) {
	if _, err := db.PostAuthorID(postID); err != nil {
		return nil, err
	}
	author, err := db.GetUserByID(authorID)
	if err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		Author:    author.Summary(),
		Text:      text,
		CreatedAt: nowMillis(),
	}

	_, err = db.writeConn.Exec(`
		INSERT INTO Comment (id, post_id, author_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, comment.ID, postID, authorID, text, comment.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	return comment, nil
}

// CommentsForPost returns a post's comments, newest first
func (db *DB) CommentsForPost(postID string) ([]*Comment, error) {
	rows, err := db.conn.Query(`
		SELECT c.id, c.post_id, c.text, c.created_at,
		       u.id, u.username, u.name, u.profile_picture
		FROM Comment c
		INNER JOIN User u ON u.id = c.author_id
		WHERE c.post_id = ?
		ORDER BY c.created_at DESC
	`, postID)

	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*Comment{}
	for rows.Next() {
		c := &Comment{}
		err := rows.Scan(
			&c.ID,
			&c.PostID,
			&c.Text,
			&c.CreatedAt,
			&c.Author.ID,
			&c.Author.Username,
			&c.Author.Name,
			&c.Author.ProfilePicture,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// ===== Conversation and Message Methods =====

// conversationPair orders the two participants canonically so each pair
// has exactly one conversation row
func conversationPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// getOrCreateConversation returns the conversation ID for the pair,
// creating the row on first contact
func (db *DB) getOrCreateConversation(a, b string) (string, error) {
	userA, userB := conversationPair(a, b)

	var id string
	err := db.conn.QueryRow(`
		SELECT id FROM Conversation WHERE user_a = ? AND user_b = ?
	`, userA, userB).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to get conversation: %w", err)
	}

	_, err = db.writeConn.Exec(`
		INSERT OR IGNORE INTO Conversation (id, user_a, user_b, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), userA, userB, nowMillis())
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	// Re-read in case a concurrent insert won
	err = db.conn.QueryRow(`
		SELECT id FROM Conversation WHERE user_a = ? AND user_b = ?
	`, userA, userB).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to get conversation: %w", err)
	}
	return id, nil
}

// AppendMessage persists a direct message from sender to receiver
func (db *DB) AppendMessage(senderID, receiverID, body string) (*Message, error) {
	if _, err := db.GetUserByID(receiverID); err != nil {
		return nil, err
	}

	convID, err := db.getOrCreateConversation(senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		CreatedAt:      nowMillis(),
	}

	_, err = db.writeConn.Exec(`
		INSERT INTO Message (id, conversation_id, sender_id, receiver_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body, msg.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}

// MessagesBetween returns the conversation history between two users in
// chronological order. An empty history is not an error.
func (db *DB) MessagesBetween(a, b string) ([]*Message, error) {
	userA, userB := conversationPair(a, b)

	rows, err := db.conn.Query(`
		SELECT m.id, m.conversation_id, m.sender_id, m.receiver_id, m.body, m.created_at
		FROM Message m
		INNER JOIN Conversation c ON c.id = m.conversation_id
		WHERE c.user_a = ? AND c.user_b = ?
		ORDER BY m.created_at ASC
	`, userA, userB)

	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		m := &Message{}
		err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
